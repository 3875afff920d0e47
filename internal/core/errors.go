package core

import (
	"errors"
	"fmt"
)

// FaultKind classifies session errors so callers can decide between
// "ask the user to do something" and "give up on this attempt".
type FaultKind int

const (
	FaultUnknown FaultKind = iota
	// FaultAuth: credential fetch failed. Fatal, no retry.
	FaultAuth
	// FaultPermission: microphone access denied. User must grant and retry.
	FaultPermission
	// FaultDevice: no usable audio capture device.
	FaultDevice
	// FaultNegotiation: SDP exchange rejected by the remote endpoint.
	FaultNegotiation
	// FaultChannel: control channel fault after establishment.
	FaultChannel
	// FaultTool: tool handler failed. Recoverable, session continues.
	FaultTool
)

func (k FaultKind) String() string {
	switch k {
	case FaultAuth:
		return "auth"
	case FaultPermission:
		return "permission"
	case FaultDevice:
		return "device"
	case FaultNegotiation:
		return "negotiation"
	case FaultChannel:
		return "channel"
	case FaultTool:
		return "tool"
	default:
		return "unknown"
	}
}

// SessionError is the error type crossing the session manager's boundary.
type SessionError struct {
	Kind FaultKind
	Msg  string
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Hint returns an actionable user-facing message for the fault class.
func (e *SessionError) Hint() string {
	switch e.Kind {
	case FaultAuth:
		return "could not authorize the voice session, try again later"
	case FaultPermission:
		return "grant microphone access and try again"
	case FaultDevice:
		return "no working microphone was found"
	case FaultNegotiation:
		return "cannot reach the voice service"
	case FaultChannel:
		return "the voice connection was lost"
	default:
		return "the voice session failed"
	}
}

// Fault wraps err into a classified SessionError.
func Fault(kind FaultKind, msg string, err error) *SessionError {
	return &SessionError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the fault class from any error in the chain.
func KindOf(err error) FaultKind {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FaultUnknown
}

// ErrChannelNotReady is returned by ReliableChannel.Send before the channel
// reaches the open state or after it closed.
var ErrChannelNotReady = errors.New("channel not ready")
