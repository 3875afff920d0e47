package session

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
)

type fakeCreds struct {
	mu    sync.Mutex
	cred  domain.Credential
	err   error
	gate  chan struct{} // when set, Mint blocks until closed
	calls int
}

func (f *fakeCreds) Mint(ctx context.Context, voice string) (domain.Credential, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Credential{}, core.Fault(core.FaultAuth, "mint canceled", ctx.Err())
		}
	}
	return f.cred, f.err
}

type fakeSource struct {
	mu        sync.Mutex
	closed    int
	enabled   bool
	energy    float64
	events    chan core.AudioEvent
	closeGate chan struct{} // when set, Close parks until closed
}

func newFakeSource() *fakeSource {
	return &fakeSource{enabled: true, events: make(chan core.AudioEvent, 4)}
}

func (f *fakeSource) Track() webrtc.TrackLocal { return nil }

func (f *fakeSource) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSource) Energy() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.energy
}

func (f *fakeSource) setEnergy(v float64) {
	f.mu.Lock()
	f.energy = v
	f.mu.Unlock()
}

func (f *fakeSource) Events() <-chan core.AudioEvent { return f.events }

func (f *fakeSource) Close() {
	f.mu.Lock()
	gate := f.closeGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	if f.closed == 1 {
		f.enabled = false
		close(f.events)
	}
}

func (f *fakeSource) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeAcquirer struct {
	mu     sync.Mutex
	source *fakeSource
	err    error
	calls  int
}

func (f *fakeAcquirer) Acquire(ctx context.Context) (core.AudioSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.source, nil
}

type fakeChannel struct {
	mu        sync.Mutex
	state     core.ChannelState
	sent      [][]byte
	sendErr   error
	onOpen    func()
	onMessage func(core.Frame)
	onError   func(error)
	closed    int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{state: core.ChannelConnecting}
}

func (f *fakeChannel) Send(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != core.ChannelOpen {
		return core.ErrChannelNotReady
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), fr...))
	return nil
}

func (f *fakeChannel) OnOpen(fn func()) {
	f.mu.Lock()
	f.onOpen = fn
	already := f.state == core.ChannelOpen
	f.mu.Unlock()
	if already && fn != nil {
		fn()
	}
}

func (f *fakeChannel) OnMessage(fn func(core.Frame)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakeChannel) OnError(fn func(error)) {
	f.mu.Lock()
	f.onError = fn
	f.mu.Unlock()
}

func (f *fakeChannel) State() core.ChannelState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.state = core.ChannelClosed
}

func (f *fakeChannel) open() {
	f.mu.Lock()
	f.state = core.ChannelOpen
	cb := f.onOpen
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *fakeChannel) inject(data []byte) {
	f.mu.Lock()
	cb := f.onMessage
	f.mu.Unlock()
	if cb != nil {
		cb(core.Frame(data))
	}
}

func (f *fakeChannel) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeTransport struct {
	mu       sync.Mutex
	channel  *fakeChannel
	tracks   int
	offerErr error
	applyErr error
	stats    core.TransportStats
	closed   int
}

func (f *fakeTransport) AddTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks++
	return nil
}

func (f *fakeTransport) CreateControlChannel(label string) (core.ReliableChannel, error) {
	return f.channel, nil
}

func (f *fakeTransport) CreateOffer(ctx context.Context) (string, error) {
	if f.offerErr != nil {
		return "", f.offerErr
	}
	return "offer-sdp", nil
}

func (f *fakeTransport) ApplyAnswer(sdp string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	// Channel comes up once the answer is applied, as with a real transport.
	f.channel.open()
	return nil
}

func (f *fakeTransport) Stats() core.TransportStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeTransport) bumpPackets(n uint32) {
	f.mu.Lock()
	f.stats.AudioPacketsSent += n
	f.mu.Unlock()
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeNegotiator struct {
	mu     sync.Mutex
	answer string
	err    error
	gate   chan struct{}
	calls  int
}

func (f *fakeNegotiator) Exchange(ctx context.Context, offer string, cred domain.Credential) (string, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate // intentionally ignores ctx: models a late network resolution
	}
	return f.answer, f.err
}
