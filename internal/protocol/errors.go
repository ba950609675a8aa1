package protocol

const (
	// Request validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Account layer.
	ErrUsernameTaken      = "E_USERNAME_TAKEN"
	ErrInvalidCredentials = "E_INVALID_CREDENTIALS"
	ErrUnauthorized       = "E_UNAUTHORIZED"
	ErrNotFound           = "E_NOT_FOUND"

	// Save layer.
	ErrConflict = "E_CONFLICT"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:         {},
	ErrUsernameTaken:      {},
	ErrInvalidCredentials: {},
	ErrUnauthorized:       {},
	ErrNotFound:           {},
	ErrConflict:           {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
