package rate

import "errors"

var (
	// ErrRateLimited is returned when a client has used up its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps every redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
