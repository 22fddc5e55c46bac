// File: internal/domain/user.go
package domain

// User is the read-only identity attached to a session. The chat core only
// reads it for message attribution; it is never mutated here.
type User struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// GuestDisplayName is used when a session carries no identity.
const GuestDisplayName = "User"

// Guest returns the anonymous identity used before sign-in.
func Guest() User {
	return User{DisplayName: GuestDisplayName}
}
