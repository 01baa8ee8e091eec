package core

import "time"

// Session is the client-side record of a successful verification.
type Session struct {
	ID            string // Attempt identifier the session was created by
	Authenticated bool
	Account       Account
	Token         string // Opaque credential issued by the relying party
	IssuedAt      time.Time
}

// Snapshot is a read-only view of the client state returned by GetState.
type Snapshot struct {
	State         State
	Authenticated bool
	Account       Account
	Token         string
}
