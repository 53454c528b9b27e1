package types

// SessionStatus represents the lifecycle status of a session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusArchived marks a completed session retired by retention cleanup
	SessionStatusArchived SessionStatus = "archived"
)

// IsValid checks if the session status is valid
func (s SessionStatus) IsValid() bool {
	return s == SessionStatusActive || s == SessionStatusCompleted || s == SessionStatusArchived
}

// String returns the string representation of the session status
func (s SessionStatus) String() string {
	return string(s)
}
