package identity

import "errors"

var (
	// ErrGuestOnly means no resolution method matched; the caller is a
	// guest and no account operations are permitted.
	ErrGuestOnly = errors.New("no resolvable identity: guest access only")
)
