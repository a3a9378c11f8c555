package messaging

import "errors"

// Error kinds shared by the realtime services. Operations wrap these with
// context using fmt.Errorf("%w: ...") and callers classify with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("not authorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("invalid state")
	ErrPersistence  = errors.New("persistence failed")
)
