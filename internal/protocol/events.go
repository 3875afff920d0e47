// Package protocol encodes and decodes the JSON event protocol carried on
// the realtime control channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/barkeep/voicelink/internal/domain"
)

// Client → agent event types.
const (
	TypeSessionUpdate          = "session.update"
	TypeConversationItemCreate = "conversation.item.create"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"
	TypeInputAudioBufferCommit = "input_audio_buffer.commit"
	TypeResponseCreate         = "response.create"
)

// Agent → client event types the session reacts to. Anything else passes
// through to the generic event observer.
const (
	TypeTranscriptDelta      = "response.audio_transcript.delta"
	TypeTranscriptDone       = "response.audio_transcript.done"
	TypeAudioDelta           = "response.audio.delta"
	TypeFunctionCallArgsDone = "response.function_call_arguments.done"
)

// Conversation item types used with TypeConversationItemCreate.
const (
	ItemInputAudioBuffer   = "input_audio_buffer"
	ItemFunctionCallOutput = "function_call_output"
)

// SessionConfig is the payload of the one-shot session.update sent when the
// control channel opens.
type SessionConfig struct {
	Modalities   []string            `json:"modalities"`
	Instructions string              `json:"instructions"`
	Tools        []domain.ToolSchema `json:"tools,omitempty"`
}

type ConversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
	Audio  string `json:"audio,omitempty"`
}

// ClientEvent is the outbound envelope. Exactly one of the optional payload
// fields is set depending on Type.
type ClientEvent struct {
	EventID string            `json:"event_id,omitempty"`
	Type    string            `json:"type"`
	Session *SessionConfig    `json:"session,omitempty"`
	Item    *ConversationItem `json:"item,omitempty"`
	Audio   string            `json:"audio,omitempty"`
}

func NewSessionUpdate(cfg SessionConfig) ClientEvent {
	return ClientEvent{Type: TypeSessionUpdate, Session: &cfg}
}

func NewFunctionCallOutput(callID, output string) ClientEvent {
	return ClientEvent{
		Type: TypeConversationItemCreate,
		Item: &ConversationItem{Type: ItemFunctionCallOutput, CallID: callID, Output: output},
	}
}

func NewResponseCreate() ClientEvent {
	return ClientEvent{Type: TypeResponseCreate}
}

// NewAudioAppend carries a base64 chunk for the push-to-talk variant.
func NewAudioAppend(b64 string) ClientEvent {
	return ClientEvent{Type: TypeInputAudioBufferAppend, Audio: b64}
}

// NewAudioBufferItem wraps a whole base64 utterance as a conversation item,
// the one-shot alternative to streaming append/commit.
func NewAudioBufferItem(b64 string) ClientEvent {
	return ClientEvent{
		Type: TypeConversationItemCreate,
		Item: &ConversationItem{Type: ItemInputAudioBuffer, Audio: b64},
	}
}

func NewAudioCommit() ClientEvent {
	return ClientEvent{Type: TypeInputAudioBufferCommit}
}

// Marshal serializes the event, assigning an event_id when absent.
func (e ClientEvent) Marshal() ([]byte, error) {
	if e.Type == "" {
		return nil, errors.New("client event without type")
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	return json.Marshal(e)
}

// ServerEvent is a decoded inbound event. Raw keeps the original payload for
// pass-through observers.
type ServerEvent struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	CallID     string `json:"call_id"`

	Raw json.RawMessage `json:"-"`
}

// Decode parses one inbound frame. A malformed frame is an error for the
// caller to log and drop; it must never take the channel down.
func Decode(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("decode server event: %w", err)
	}
	if ev.Type == "" {
		return ServerEvent{}, errors.New("decode server event: missing type")
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}
