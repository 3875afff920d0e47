package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
	"github.com/barkeep/voicelink/internal/protocol"
)

// closeGrace bounds how long teardown waits for in-flight tool handlers.
const closeGrace = 3 * time.Second

// Dispatcher bridges agent function calls to locally registered handlers.
// Handlers run in their own goroutines so the control channel keeps
// draining while a tool does I/O.
type Dispatcher struct {
	registry *domain.ToolRegistry
	channel  core.ReliableChannel
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewDispatcher(registry *domain.ToolRegistry, channel core.ReliableChannel, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		channel:  channel,
		timeout:  timeout,
		pending:  make(map[string]context.CancelFunc),
	}
}

// Dispatch registers the call and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, callID, name, rawArgs string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Warn().Str("module", "session.tools").Str("call_id", callID).Msg("dispatch after close, ignoring")
		return
	}
	if _, dup := d.pending[callID]; dup {
		d.mu.Unlock()
		log.Warn().Str("module", "session.tools").Str("call_id", callID).Msg("duplicate call id, ignoring")
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	d.pending[callID] = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	go d.invoke(callCtx, cancel, callID, name, rawArgs)
}

func (d *Dispatcher) invoke(ctx context.Context, cancel context.CancelFunc, callID, name, rawArgs string) {
	defer d.wg.Done()
	defer cancel()
	defer func() {
		d.mu.Lock()
		delete(d.pending, callID)
		d.mu.Unlock()
	}()

	output := d.execute(ctx, name, rawArgs)
	d.reply(callID, output)
}

// execute always yields a serialized result: handler failures become an
// error payload the agent can verbally recover from.
func (d *Dispatcher) execute(ctx context.Context, name, rawArgs string) string {
	tool, ok := d.registry.Lookup(name)
	if !ok {
		log.Warn().Str("module", "session.tools").Str("tool", name).Msg("unknown tool requested")
		return errorOutput(fmt.Sprintf("unknown tool %q", name))
	}

	var args map[string]any
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return errorOutput("invalid arguments: " + err.Error())
		}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		log.Warn().Err(err).Str("module", "session.tools").Str("tool", name).Msg("tool handler failed")
		return errorOutput(err.Error())
	}

	out, err := json.Marshal(result)
	if err != nil {
		return errorOutput("unserializable tool result: " + err.Error())
	}
	return string(out)
}

func errorOutput(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}

// reply sends the function_call_output followed by response.create so the
// agent continues speaking with the result incorporated. Results arriving
// after Close are ignored, not delivered.
func (d *Dispatcher) reply(callID, output string) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		log.Info().Str("module", "session.tools").Str("call_id", callID).Msg("result after close, dropped")
		return
	}

	for _, ev := range []protocol.ClientEvent{
		protocol.NewFunctionCallOutput(callID, output),
		protocol.NewResponseCreate(),
	} {
		frame, err := ev.Marshal()
		if err != nil {
			log.Error().Err(err).Str("module", "session.tools").Msg("encode tool reply")
			return
		}
		if err := d.channel.Send(frame); err != nil {
			log.Warn().Err(err).Str("module", "session.tools").Str("call_id", callID).Msg("send tool reply")
			return
		}
	}
}

func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close cancels in-flight handlers and waits up to closeGrace for them to
// unwind; stragglers are abandoned with a log line.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, cancel := range d.pending {
		cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGrace):
		log.Warn().Int("pending", d.PendingCount()).Str("module", "session.tools").Msg("abandoning tool calls at teardown")
	}
}
