// Package rtc implements core.Transport on top of a pion PeerConnection.
package rtc

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
)

type PeerTransport struct {
	pc  *webrtc.PeerConnection
	sid domain.SessionID

	onClosed func()
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewPeerTransport(cfg webrtc.Configuration, sid domain.SessionID) (*PeerTransport, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	t := &PeerTransport{pc: pc, sid: sid}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			if t.onClosed != nil {
				t.onClosed()
			}
		}
	})

	return t, nil
}

// OnClosed sets an application-level callback for transport-level failure.
func (t *PeerTransport) OnClosed(fn func()) { t.onClosed = fn }

func (t *PeerTransport) AddTrack(track webrtc.TrackLocal) error {
	if _, err := t.pc.AddTrack(track); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	return nil
}

// CreateControlChannel opens a reliable ordered data channel. Must be called
// before CreateOffer so the channel is part of the negotiated session.
func (t *PeerTransport) CreateControlChannel(label string) (core.ReliableChannel, error) {
	ordered := true
	dc, err := t.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return newDataChannel(dc, t.sid), nil
}

// CreateOffer produces the local description after ICE gathering completes,
// so the SDP shipped to the negotiation endpoint carries the candidates.
func (t *PeerTransport) CreateOffer(ctx context.Context) (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := t.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description after gathering")
	}
	return local.SDP, nil
}

func (t *PeerTransport) ApplyAnswer(sdp string) error {
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return nil
}

func (t *PeerTransport) Stats() core.TransportStats {
	var out core.TransportStats
	for _, s := range t.pc.GetStats() {
		if rtp, ok := s.(webrtc.OutboundRTPStreamStats); ok && rtp.Kind == "audio" {
			out.AudioPacketsSent += rtp.PacketsSent
			out.AudioBytesSent += rtp.BytesSent
		}
	}
	return out
}

func (t *PeerTransport) Close() {
	if t.pc == nil {
		return
	}
	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("sid", string(t.sid)).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("sid", string(t.sid)).Msg("closed")
	}
}
