package rate

import "errors"

var (
	// ErrRateLimited is returned when an attempt would exceed the window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any backing-store fault seen while counting attempts.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidPolicy is returned for a non-positive limit or window.
	ErrInvalidPolicy = errors.New("invalid throttle policy")
)
