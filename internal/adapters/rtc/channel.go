package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
)

// dataChannel wraps a pion data channel as a core.ReliableChannel.
// Its state moves Connecting → Open → Closed and never back.
type dataChannel struct {
	dc  *webrtc.DataChannel
	sid domain.SessionID

	mu        sync.RWMutex
	state     core.ChannelState
	onOpen    func()
	onMessage func(core.Frame)
	onError   func(error)
}

func newDataChannel(dc *webrtc.DataChannel, sid domain.SessionID) *dataChannel {
	c := &dataChannel{dc: dc, sid: sid, state: core.ChannelConnecting}

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.state != core.ChannelConnecting {
			c.mu.Unlock()
			return
		}
		c.state = core.ChannelOpen
		cb := c.onOpen
		c.mu.Unlock()

		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("label", dc.Label()).Msg("control channel open")
		if cb != nil {
			cb()
		}
	})

	dc.OnClose(func() {
		c.mu.Lock()
		c.state = core.ChannelClosed
		c.mu.Unlock()
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("label", dc.Label()).Msg("control channel closed")
	})

	dc.OnError(func(err error) {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.RLock()
		cb := c.onMessage
		c.mu.RUnlock()
		if cb != nil {
			cb(core.Frame(msg.Data))
		}
	})

	return c
}

func (c *dataChannel) Send(f core.Frame) error {
	c.mu.RLock()
	open := c.state == core.ChannelOpen
	c.mu.RUnlock()
	if !open {
		return core.ErrChannelNotReady
	}
	return c.dc.Send(f)
}

func (c *dataChannel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	already := c.state == core.ChannelOpen
	c.mu.Unlock()
	// The pion open event may have fired before the caller registered.
	if already && fn != nil {
		fn()
	}
}

func (c *dataChannel) OnMessage(fn func(core.Frame)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *dataChannel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *dataChannel) State() core.ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *dataChannel) Close() {
	c.mu.Lock()
	if c.state == core.ChannelClosed {
		c.mu.Unlock()
		return
	}
	c.state = core.ChannelClosed
	c.mu.Unlock()
	if err := c.dc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("sid", string(c.sid)).Msg("data channel close error")
	}
}
