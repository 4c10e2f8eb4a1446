package account

import "errors"

var (
	// ErrAccountNotFound signals that the account could not be located.
	ErrAccountNotFound = errors.New("account not found")
)
