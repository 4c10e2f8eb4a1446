package workspace

import "errors"

var (
	// ErrItemNotFound signals that no live item matches the code and owner.
	ErrItemNotFound = errors.New("item not found")
	// ErrCodeSpaceExhausted means code generation kept colliding. It points
	// at a configuration problem and should alarm, not silently degrade.
	ErrCodeSpaceExhausted = errors.New("item code space exhausted")
)
