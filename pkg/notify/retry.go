package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy decides how a reminder is redelivered through the gateway and
// how fast one instance may be driven.
type RetryPolicy struct {
	MaxAttempts uint32
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration

	// RetryStatusCodes are the gateway answers worth another attempt. A
	// Retry-After on any of them replaces the backoff, capped at MaxDelay.
	RetryStatusCodes []int

	// InstanceInterval is the least time between two posts to the same
	// instance. Zero disables pacing.
	InstanceInterval time.Duration
}

// DefaultRetryPolicy leaves 500 out: the gateway answers 500 when the
// instance session is closed, and that needs a reconnect, not a resend.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxDelay:         10 * time.Second,
		Jitter:           250 * time.Millisecond,
		RetryStatusCodes: []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		InstanceInterval: 500 * time.Millisecond,
	}
}

func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts == 0:
		return fmt.Errorf("%w: at least one attempt is required", ErrInvalidArgument)
	case p.BaseDelay <= 0 || p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: backoff must be positive and below its cap", ErrInvalidArgument)
	case p.Jitter < 0 || p.InstanceInterval < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidArgument)
	}
	for _, code := range p.RetryStatusCodes {
		if code < 400 || code > 599 {
			return fmt.Errorf("%w: status %d is not an error answer", ErrInvalidArgument, code)
		}
	}
	return nil
}

// retryAfter reads a Retry-After header in either seconds or HTTP-date form.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
