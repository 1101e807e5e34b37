package retry

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// A Retrier runs remote operations that may fail with transient conditions,
// backing off exponentially between attempts. Permanent failures (bad
// credentials, malformed requests) surface immediately without retrying.
type Retrier struct {
	// Attempts is the total number of times the operation is tried.
	Attempts int

	// BaseDelay is the backoff before the second attempt. It doubles on each
	// subsequent attempt.
	BaseDelay time.Duration

	// Clock is used to wait out the backoff. Tests swap in a fake clock so
	// they don't have to sleep.
	Clock clockwork.Clock
}

// New creates a Retrier backed by the real clock.
func New(attempts int, baseDelay time.Duration) Retrier {
	return Retrier{
		Attempts:  attempts,
		BaseDelay: baseDelay,
		Clock:     clockwork.NewRealClock(),
	}
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts, or
// the context is cancelled.
func (r Retrier) Do(ctx context.Context, fn func() error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := r.BaseDelay
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			log.WithError(err).WithField("backoff", delay).Debug(
				"Retrying after transient failure")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.Clock.After(delay):
			}
			delay *= 2
		}

		if err = fn(); err == nil {
			return nil
		}

		if !Transient(err) {
			return err
		}
	}
	return err
}

// Transient returns whether the error is a condition that's expected to
// resolve on its own, such as a timeout, a throttling signal, or a
// server-side failure.
func Transient(err error) bool {
	if request.IsErrorRetryable(err) || request.IsErrorThrottle(err) {
		return true
	}

	if reqErr, ok := err.(awserr.RequestFailure); ok {
		return reqErr.StatusCode() >= 500 ||
			reqErr.StatusCode() == http.StatusTooManyRequests
	}

	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}
	return false
}
