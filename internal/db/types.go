package db

import "time"

// Credential is the signed-in user. There is at most one.
type Credential struct {
	Email    string
	Token    string
	FullName string
	IsAdmin  bool
	SavedAt  time.Time
}

// Notification is one recorded session event.
type Notification struct {
	ID        string
	Kind      string
	Type      string
	StationID string
	SessionID string
	Actor     string
	Ts        time.Time
	Read      bool
}
