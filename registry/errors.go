package registry

import "errors"

// Sentinel errors for consistent error handling.
var (
	ErrEmptyName      = errors.New("spell name is empty")
	ErrNilInvoke      = errors.New("spell has no invoke handle")
	ErrDuplicateSpell = errors.New("duplicate spell id")
)
