// Package identity is the boundary to the external identity provider.
//
// Provider is the raw credential API. Client layers an AuthState on top of it
// so callers can subscribe to signed-in identity changes and release the
// subscription when they are torn down. The guard and verification packages
// depend on narrow slices of Client, never on a package-level singleton.
package identity
