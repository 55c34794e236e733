package ratelimit

import (
	"fmt"
	"time"
)

// Error is the business rejection raised when a request exceeds its policy
// ceiling. It carries the wait the client should observe before retrying.
// Unlike backing-store failures, which fail open and are never surfaced,
// this rejection is never swallowed.
type Error struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", int64(e.RetryAfter.Seconds()))
}
