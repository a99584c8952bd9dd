// Package identity describes the signed-in user as reported by the external
// identity provider.
package identity

// Identity is a snapshot of the identity provider's state. IsLoaded is false
// while the provider is still resolving the user.
type Identity struct {
	ID         string
	IsLoaded   bool
	IsSignedIn bool
}

// SignedIn returns a loaded, signed-in identity for id.
func SignedIn(id string) Identity {
	return Identity{ID: id, IsLoaded: true, IsSignedIn: true}
}

// SignedOut returns a loaded identity with no user.
func SignedOut() Identity {
	return Identity{IsLoaded: true}
}

// Ready reports whether a session may be opened for this identity.
func (i Identity) Ready() bool {
	return i.IsLoaded && i.IsSignedIn && i.ID != ""
}
