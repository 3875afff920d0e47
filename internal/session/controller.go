// Package session drives one realtime voice session at a time: credential,
// microphone, SDP negotiation, then the control-channel event loop.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
	"github.com/barkeep/voicelink/internal/protocol"
)

// ErrSessionBusy is returned by Start while a session is active or still
// transitioning; callers must Stop first to restart.
var ErrSessionBusy = errors.New("session already active or transitioning")

type Config struct {
	Voice         string
	Instructions  string
	ChannelLabel  string
	OpenTimeout   time.Duration
	ToolTimeout   time.Duration
	StatsInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChannelLabel == "" {
		c.ChannelLabel = "oai-events"
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 20 * time.Second
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = 2 * time.Second
	}
	return c
}

// Deps are the collaborators a session sequence runs through.
type Deps struct {
	Credentials core.CredentialSource
	Audio       core.AudioAcquirer
	Transports  core.TransportFactory
	Negotiator  core.AnswerExchanger
	Registry    *domain.ToolRegistry
}

// Callbacks are the observer hooks to the UI layer. All errors cross this
// boundary via OnError exactly once; nothing is thrown across the channel.
type Callbacks struct {
	// OnTranscript delivers each finished agent utterance.
	OnTranscript func(text string)
	// OnEvent sees every parsed protocol event (e.g. for an isTalking signal).
	OnEvent func(raw json.RawMessage)
	OnError func(err error)
}

// live holds the resources of the current attempt. Fields are bound under
// the controller mutex so teardown always sees what was acquired.
type live struct {
	cancel     context.CancelFunc
	source     core.AudioSource
	transport  core.Transport
	channel    core.ReliableChannel
	dispatcher *Dispatcher
	monitor    *Monitor
	events     chan core.Frame
}

// Controller is the session state machine. One logical session per
// instance; overlapping Start calls are rejected, not queued.
type Controller struct {
	cfg  Config
	deps Deps
	cb   Callbacks

	mu      sync.Mutex
	state   domain.State
	attempt uint64
	cur     *live
}

func NewController(cfg Config, deps Deps, cb Callbacks) *Controller {
	if deps.Registry == nil {
		deps.Registry, _ = domain.NewToolRegistry()
	}
	return &Controller{
		cfg:   cfg.withDefaults(),
		deps:  deps,
		cb:    cb,
		state: domain.StateIdle,
	}
}

func (c *Controller) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Active() bool { return c.State() == domain.StateActive }

// Health returns the latest audio-path report, false when no session (or no
// monitor yet) is running.
func (c *Controller) Health() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.monitor == nil {
		return Report{}, false
	}
	return c.cur.monitor.LastReport(), true
}

// Start kicks off session establishment and returns immediately. The
// attempt counter invalidates any continuation of a superseded attempt.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != domain.StateIdle || c.cur != nil {
		c.mu.Unlock()
		log.Warn().Str("module", "session").Msg("start ignored, session busy")
		return ErrSessionBusy
	}
	c.attempt++
	att := c.attempt
	ctx, cancel := context.WithCancel(context.Background())
	s := &live{cancel: cancel, events: make(chan core.Frame, 64)}
	c.cur = s
	c.state = domain.StateAcquiringCredential
	c.mu.Unlock()

	go c.establish(ctx, att, s)
	return nil
}

// Stop tears the current session down and returns once every resource is
// released. Safe to call from any state, including mid-establishment.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.cur == nil && c.state == domain.StateIdle {
		c.mu.Unlock()
		return
	}
	c.attempt++ // invalidate in-flight continuations
	closing := c.attempt
	s := c.cur
	c.cur = nil
	c.state = domain.StateClosing
	c.mu.Unlock()

	c.teardown(s)

	// Teardown runs unlocked and can be slow; if anything superseded this
	// stop meanwhile, that owner writes the state now.
	c.mu.Lock()
	if c.attempt == closing {
		c.state = domain.StateIdle
	}
	c.mu.Unlock()
	log.Info().Str("module", "session").Msg("session stopped")
}

// SendEvent forwards a caller-built protocol event to the agent. Only
// meaningful while Active; otherwise the channel-not-ready error surfaces
// instead of a silent drop.
func (c *Controller) SendEvent(ev protocol.ClientEvent) error {
	c.mu.Lock()
	if c.state != domain.StateActive || c.cur == nil || c.cur.channel == nil {
		c.mu.Unlock()
		return core.ErrChannelNotReady
	}
	ch := c.cur.channel
	c.mu.Unlock()

	frame, err := ev.Marshal()
	if err != nil {
		return err
	}
	return ch.Send(frame)
}

// alive reports whether att is still the current attempt.
func (c *Controller) alive(att uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt == att
}

// advance moves the state machine forward, refusing stale attempts.
func (c *Controller) advance(att uint64, next domain.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != att {
		return false
	}
	c.state = next
	return true
}

// bind attaches a freshly acquired resource to the current attempt so
// teardown owns it from here on. Returns false when the attempt is stale,
// in which case the caller must release the resource itself.
func (c *Controller) bind(att uint64, fn func(*live)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != att || c.cur == nil {
		return false
	}
	fn(c.cur)
	return true
}

// fail runs the same teardown as Closing, then reports the error once.
func (c *Controller) fail(att uint64, err error) {
	c.mu.Lock()
	if c.attempt != att {
		c.mu.Unlock()
		return // superseded; whoever superseded us owns the cleanup
	}
	c.attempt++
	failed := c.attempt
	s := c.cur
	c.cur = nil
	c.state = domain.StateFailed
	c.mu.Unlock()

	log.Error().Err(err).Str("module", "session").Msg("session failed")
	c.teardown(s)

	// A Stop or a fresh Start may have run during the unlocked teardown;
	// only reset Failed → Idle if this failure is still the latest word.
	c.mu.Lock()
	if c.attempt == failed {
		c.state = domain.StateIdle
	}
	c.mu.Unlock()

	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func (c *Controller) teardown(s *live) {
	if s == nil {
		return
	}
	s.cancel()
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.channel != nil {
		s.channel.Close()
	}
	if s.transport != nil {
		s.transport.Close()
	}
	if s.source != nil {
		s.source.Close()
	}
}

// establish runs the acquisition sequence. Each awaited stage re-checks the
// attempt before mutating shared state; a stale continuation only cleans up
// what it alone holds.
func (c *Controller) establish(ctx context.Context, att uint64, s *live) {
	cred, err := c.deps.Credentials.Mint(ctx, c.cfg.Voice)
	if err != nil {
		c.fail(att, err)
		return
	}
	if !c.advance(att, domain.StateAcquiringMedia) {
		return
	}

	source, err := c.deps.Audio.Acquire(ctx)
	if err != nil {
		c.fail(att, err)
		return
	}
	if !c.bind(att, func(l *live) { l.source = source }) {
		source.Close() // acquired after the attempt was superseded
		return
	}
	go c.watchAudio(att, source)

	transport, err := c.deps.Transports()
	if err != nil {
		c.fail(att, core.Fault(core.FaultNegotiation, "create transport", err))
		return
	}
	if !c.bind(att, func(l *live) { l.transport = transport }) {
		transport.Close()
		return
	}

	if err := transport.AddTrack(source.Track()); err != nil {
		c.fail(att, core.Fault(core.FaultNegotiation, "attach audio track", err))
		return
	}

	channel, err := transport.CreateControlChannel(c.cfg.ChannelLabel)
	if err != nil {
		c.fail(att, core.Fault(core.FaultNegotiation, "create control channel", err))
		return
	}
	if !c.bind(att, func(l *live) { l.channel = channel }) {
		channel.Close()
		return
	}

	// Wire inbound frames into the session queue before negotiating so no
	// early message is lost. The blocking send preserves arrival order;
	// frames arriving after teardown fall into the ctx.Done branch.
	channel.OnMessage(func(f core.Frame) {
		select {
		case s.events <- f:
		case <-ctx.Done():
		}
	})
	channel.OnError(func(err error) {
		c.fail(att, core.Fault(core.FaultChannel, "control channel fault", err))
	})
	opened := make(chan struct{})
	var openOnce sync.Once
	channel.OnOpen(func() {
		openOnce.Do(func() { close(opened) })
	})

	if !c.advance(att, domain.StateNegotiating) {
		return
	}

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		c.fail(att, core.Fault(core.FaultNegotiation, "create offer", err))
		return
	}

	// The credential is consumed here: one negotiation per mint.
	answer, err := c.deps.Negotiator.Exchange(ctx, offer, cred)
	if err != nil {
		c.fail(att, err)
		return
	}
	if !c.alive(att) {
		return
	}
	if err := transport.ApplyAnswer(answer); err != nil {
		c.fail(att, core.Fault(core.FaultNegotiation, "apply answer", err))
		return
	}

	select {
	case <-opened:
	case <-time.After(c.cfg.OpenTimeout):
		c.fail(att, core.Fault(core.FaultChannel, "control channel open timeout", nil))
		return
	case <-ctx.Done():
		return
	}

	// One-shot session configuration, carrying the tool schema.
	update := protocol.NewSessionUpdate(protocol.SessionConfig{
		Modalities:   []string{"text", "audio"},
		Instructions: c.cfg.Instructions,
		Tools:        c.deps.Registry.Schemas(),
	})
	frame, err := update.Marshal()
	if err == nil {
		err = channel.Send(frame)
	}
	if err != nil {
		c.fail(att, core.Fault(core.FaultChannel, "send session.update", err))
		return
	}

	dispatcher := NewDispatcher(c.deps.Registry, channel, c.cfg.ToolTimeout)
	monitor := NewMonitor(transport, source, c.cfg.StatsInterval)
	if !c.bind(att, func(l *live) {
		l.dispatcher = dispatcher
		l.monitor = monitor
	}) {
		dispatcher.Close()
		return
	}
	monitor.Start()

	if !c.advance(att, domain.StateActive) {
		return
	}
	log.Info().Str("module", "session").Uint64("attempt", att).Msg("session active")

	c.pump(ctx, s, dispatcher)
}

// pump is the steady-state control channel loop. Transcript deltas for a
// turn are concatenated in arrival order so the utterance survives even if
// the done event carries no transcript.
func (c *Controller) pump(ctx context.Context, s *live, d *Dispatcher) {
	var turn strings.Builder
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.events:
			ev, err := protocol.Decode(f)
			if err != nil {
				log.Warn().Err(err).Str("module", "session").Msg("dropping malformed control message")
				continue
			}
			switch ev.Type {
			case protocol.TypeTranscriptDelta:
				turn.WriteString(ev.Delta)
			case protocol.TypeTranscriptDone:
				text := ev.Transcript
				if text == "" {
					text = turn.String()
				}
				turn.Reset()
				if c.cb.OnTranscript != nil {
					c.cb.OnTranscript(text)
				}
			case protocol.TypeFunctionCallArgsDone:
				d.Dispatch(ctx, ev.CallID, ev.Name, ev.Arguments)
			}
			if c.cb.OnEvent != nil {
				c.cb.OnEvent(ev.Raw)
			}
		}
	}
}

// watchAudio reacts to platform capture signals instead of letting a dead
// microphone keep a session alive.
func (c *Controller) watchAudio(att uint64, source core.AudioSource) {
	for ev := range source.Events() {
		switch ev {
		case core.AudioEnded:
			c.fail(att, core.Fault(core.FaultDevice, "audio capture ended", nil))
			return
		case core.AudioMuted:
			log.Warn().Str("module", "session").Msg("microphone muted")
		case core.AudioUnmuted:
			log.Info().Str("module", "session").Msg("microphone unmuted")
		}
	}
}
