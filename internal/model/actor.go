package model

// Actor is the identity an event is attributed to: either an Identified
// user or an Anonymous session. The set is sealed.
type Actor interface {
	// Key is the identity used for distinct-user counting.
	Key() string
	isActor()
}

// Identified is an authenticated user.
type Identified struct {
	UserID string
}

// Anonymous is a visitor known only by session. SessionID may be empty
// when the event was tracked without any request context.
type Anonymous struct {
	SessionID string
}

// Key implements Actor.
func (i Identified) Key() string { return "user:" + i.UserID }

// Key implements Actor.
func (a Anonymous) Key() string { return "session:" + a.SessionID }

func (Identified) isActor() {}
func (Anonymous) isActor()  {}
