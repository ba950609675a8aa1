package state

import "errors"

// Validation failures. Every one of these leaves the state untouched.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUnknownBlock       = errors.New("unknown block")
	ErrNotOwned           = errors.New("block not owned")
	ErrOutOfRange         = errors.New("position out of range")
	ErrInvalidPermutation = errors.New("not a permutation of the current program")
)
