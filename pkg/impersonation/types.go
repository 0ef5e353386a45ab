package impersonation

import (
	"time"
)

// EndReason is a closed set of session termination causes
type EndReason string

const (
	// EndReasonManualStop means the admin explicitly ended the session
	EndReasonManualStop EndReason = "manual_stop"
	// EndReasonTimeout means the timeout sweep closed the session
	EndReasonTimeout EndReason = "timeout"
	// EndReasonNewSession means the admin started a session for another
	// target, which closes the previous one
	EndReasonNewSession EndReason = "new_session"
	// EndReasonAdminDeactivated means the admin account was deactivated
	// while the session was open
	EndReasonAdminDeactivated EndReason = "admin_deactivated"
)

// Valid reports whether the end reason is recognized
func (r EndReason) Valid() bool {
	switch r {
	case EndReasonManualStop, EndReasonTimeout, EndReasonNewSession, EndReasonAdminDeactivated:
		return true
	}
	return false
}

// Session is one impersonation episode. A session is active while
// EndedAt is nil and StartedAt is within the configured timeout window;
// "active" is computed from the wall clock on every read, never stored
// as a flag.
type Session struct {
	ID                  int64      `json:"id"`
	AdminActorID        int64      `json:"admin_actor_id"`
	ImpersonatedActorID int64      `json:"impersonated_actor_id"`
	StartedAt           time.Time  `json:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	Reason              string     `json:"reason"`
	IPAddress           string     `json:"ip_address,omitempty"`
	UserAgent           string     `json:"user_agent,omitempty"`
	EndReason           *EndReason `json:"end_reason,omitempty"`
}

// Active reports whether the session counts as active at the given
// instant under the given timeout. A timed-out-but-open session is
// inactive immediately; the sweep assigns its end reason later.
func (s *Session) Active(now time.Time, timeout time.Duration) bool {
	return s.EndedAt == nil && now.Sub(s.StartedAt) < timeout
}
