package models

import "time"

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds, only set when not allowed.
	RetryAfter int
}
