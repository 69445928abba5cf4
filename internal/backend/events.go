package backend

import "time"

type EventType string

const (
	EventSignedIn        EventType = "signed_in"
	EventSignedOut       EventType = "signed_out"
	EventTokenRefreshed  EventType = "token_refreshed"
	EventProfileUpdated  EventType = "profile_updated"
	EventVerified        EventType = "verified"
	EventSessionsRevoked EventType = "sessions_revoked"
)

// IdentityEvent is pushed to every open event stream of a user.
type IdentityEvent struct {
	Type EventType `json:"type"`
	// SessionID is the session that caused the event. For
	// EventSessionsRevoked it is the one session that survives.
	SessionID string    `json:"session_id,omitempty"`
	Identity  *Identity `json:"identity,omitempty"`
	At        time.Time `json:"at"`
}

// Ends reports whether the event terminates the session sid.
func (e IdentityEvent) Ends(sid string) bool {
	switch e.Type {
	case EventSignedOut:
		return e.SessionID == sid
	case EventSessionsRevoked:
		return e.SessionID != sid
	}
	return false
}
