package admission

import (
	"fmt"
	"time"
)

type Reason string

const ReasonRateLimited Reason = "ERR_RATE_LIMITED"
const ReasonConnectionQuota Reason = "ERR_CONNECTION_QUOTA"
const ReasonSessionQuota Reason = "ERR_SESSION_QUOTA"

// Error is a typed admission rejection. Recoverable: the caller should
// retry after RetryAfter.
type Error struct {
	Reason     Reason
	RetryAfter time.Duration
}

func NewError(reason Reason, retryAfter time.Duration) error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Error{
		Reason:     reason,
		RetryAfter: retryAfter,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("admission rejected: reason: %s", e.Reason)
}

func IsAdmissionError(e error) bool {
	_, ok := e.(*Error)
	return ok
}
