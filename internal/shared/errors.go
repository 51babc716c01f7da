package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation or a blocked delete.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates a missing, expired or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a valid credential without the required permission code.
	ErrForbidden = errors.New("forbidden")
	// ErrConfiguration indicates invalid startup configuration.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidArgument indicates a request that is well formed but semantically invalid.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUserDisabled indicates the account exists but is disabled.
	ErrUserDisabled = errors.New("user disabled")
)
