// Package domain contains entity without logic, just meta-data
package domain

type SessionID string

// State is the lifecycle position of a voice session.
type State int

const (
	StateIdle State = iota
	StateAcquiringCredential
	StateAcquiringMedia
	StateNegotiating
	StateActive
	StateClosing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringCredential:
		return "acquiring_credential"
	case StateAcquiringMedia:
		return "acquiring_media"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transitioning reports whether the session is between Idle and Active.
func (s State) Transitioning() bool {
	return s == StateAcquiringCredential || s == StateAcquiringMedia || s == StateNegotiating
}

// Credential is a short-lived secret scoped to exactly one negotiation
// attempt. It must never be persisted or logged.
type Credential struct {
	Value string
}
