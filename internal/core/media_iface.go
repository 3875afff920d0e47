package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/barkeep/voicelink/internal/domain"
)

// Frame is a raw binary payload.
type Frame []byte

// ChannelState tracks the one-directional lifecycle of a control channel.
// A closed channel is never reopened; a new session creates a new one.
type ChannelState int

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReliableChannel is an ordered, reliable, bidirectional message channel.
// Owned by the session; the session must Close() it.
type ReliableChannel interface {
	// Send rejects with ErrChannelNotReady unless the channel is open.
	Send(Frame) error
	OnOpen(func())
	OnMessage(func(Frame))
	OnError(func(error))
	State() ChannelState
	Close()
}

// AudioEvent is a platform signal about the captured microphone path.
type AudioEvent int

const (
	AudioMuted AudioEvent = iota
	AudioUnmuted
	AudioEnded
)

// AudioSource is a live microphone capture attached to a session.
// Every code path that creates one must Close() it exactly once.
type AudioSource interface {
	// Track is the handle the Transport attaches to the media path.
	Track() webrtc.TrackLocal
	Enabled() bool
	// Energy reports the RMS level of the most recent capture window,
	// normalized to [0,1]. Used by the health monitor to spot OS-level mute.
	Energy() float64
	// Events surfaces mute/unmute/ended signals; closed on Close().
	Events() <-chan AudioEvent
	Close()
}

// TransportStats is a sample of outbound audio counters.
type TransportStats struct {
	AudioPacketsSent uint32
	AudioBytesSent   uint64
}

// Transport abstracts the peer connection carrying media plus the control
// channel. Mutated only by the session's own establishment sequence.
type Transport interface {
	AddTrack(webrtc.TrackLocal) error
	// CreateControlChannel must be called before the offer is created so the
	// channel is part of the negotiated session.
	CreateControlChannel(label string) (ReliableChannel, error)
	// CreateOffer returns the local description after ICE gathering.
	CreateOffer(ctx context.Context) (string, error)
	ApplyAnswer(sdp string) error
	Stats() TransportStats
	Close()
}

// CredentialSource mints a short-lived credential for one negotiation
// attempt. The backend holding the long-lived secret is the trust boundary.
type CredentialSource interface {
	Mint(ctx context.Context, voice string) (domain.Credential, error)
}

// AnswerExchanger posts the local offer to the remote negotiation endpoint
// and returns the answer. Sending the offer consumes the credential.
type AnswerExchanger interface {
	Exchange(ctx context.Context, offerSDP string, cred domain.Credential) (string, error)
}

// AudioAcquirer opens the local microphone.
type AudioAcquirer interface {
	Acquire(ctx context.Context) (AudioSource, error)
}

// TransportFactory builds a fresh Transport per session attempt.
type TransportFactory func() (Transport, error)
