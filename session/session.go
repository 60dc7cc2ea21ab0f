package session

// Session is the result of one authentication check. It is a value: a new
// check produces a new Session and never edits an old one.
type Session struct {
	Authenticated bool
	Role          Role
	UserID        string
}

// Anonymous returns the unauthenticated session.
func Anonymous() Session {
	return Session{Role: RoleNone}
}

// Principal is the raw whoAmI payload.
type Principal struct {
	Role   string `json:"role"`
	UserID string `json:"userId"`
}
