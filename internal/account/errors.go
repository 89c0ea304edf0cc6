package account

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
)
