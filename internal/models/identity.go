package models

// ClientIdentity is the resolved caller of a request. ClientID feeds rate
// limiting and cache isolation; the database IDs are zero for anonymous
// callers.
type ClientIdentity struct {
	ClientID string
	APIKeyID uint
	UserID   uint
}

// Authenticated reports whether the caller maps to a known user.
func (c ClientIdentity) Authenticated() bool {
	return c.UserID != 0
}
