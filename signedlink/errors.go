package signedlink

import "errors"

var (
	// ErrNoSecret is returned by constructors when no signing secret is configured.
	ErrNoSecret = errors.New("signed link secret not configured")
	// ErrSecretTooShort is returned when a secret is shorter than MinSecretLength.
	ErrSecretTooShort = errors.New("signed link secret too short")
	// ErrEmptySubject is returned by Sign for an empty subject id.
	ErrEmptySubject = errors.New("signed link subject is empty")
	// ErrUnknownEncoding is returned for an unsupported signature encoding.
	ErrUnknownEncoding = errors.New("unknown signature encoding")
	// ErrRedisUnavailable wraps revocation backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
