// Package auth talks to external OAuth identity providers and turns their
// assertions into Identity values.
package auth

// Identity is the profile an identity provider asserts after a successful login.
type Identity struct {
	Provider    string // "github", "oidc", ...
	Subject     string // stable provider-side user id
	Login       string // provider handle, used to derive the username
	DisplayName string
	AvatarURL   string
	Email       string
}

// ExternalID returns the stable "provider:subject" key for the identity.
func (i Identity) ExternalID() string {
	return i.Provider + ":" + i.Subject
}
