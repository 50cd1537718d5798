package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"hrexport/lib/telemetry"
)

var (
	// ErrNotReady means the expected content was not (yet) on the page.
	ErrNotReady = errors.New("content not ready")
	// ErrTimeout means the source did not answer in time.
	ErrTimeout = errors.New("source timed out")
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotReady
	OutcomeTimeout
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotReady:
		return "not-ready"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Classify tags an error returned by a source with how it may be retried.
// Cancellation always classifies as fatal since it is how an operator aborts a run.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeFatal
	}
	if errors.Is(err, ErrNotReady) {
		return OutcomeNotReady
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeFatal
}

// Unbounded disables the retry limit for an outcome.
const Unbounded = -1

// Bounds is how many times each retryable outcome may be retried.
type Bounds struct {
	NotReady int
	Timeout  int
}

func (b Bounds) limit(outcome Outcome) int {
	switch outcome {
	case OutcomeNotReady:
		return b.NotReady
	case OutcomeTimeout:
		return b.Timeout
	}
	return 0
}

type Policy struct {
	Page   Bounds
	Detail Bounds
	// Delay is waited before each retry.
	Delay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Page:   Bounds{NotReady: Unbounded, Timeout: 10},
		Detail: Bounds{NotReady: 2, Timeout: 10},
		Delay:  2 * time.Second,
	}
}

// RetryExhaustedError is returned once an outcome has been retried more times
// than its bound allows.
type RetryExhaustedError struct {
	What     string
	Outcome  Outcome
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	if e.Outcome == OutcomeTimeout {
		return fmt.Sprintf(
			"%s: gave up after %d attempts, something is wrong with connectivity: %s",
			e.What, e.Attempts, e.Err.Error(),
		)
	}
	return fmt.Sprintf(
		"%s: expected content still missing after %d attempts: %s",
		e.What, e.Attempts, e.Err.Error(),
	)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

func sleep(ctx context.Context, d time.Duration) error {
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

// retry calls fn until it succeeds, fails fatally or exceeds its bounds,
// each retry is reported as a warning under `id`.
func retry[T any](
	ctx context.Context,
	tel telemetry.API,
	id string,
	what string,
	bounds Bounds,
	delay time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	retries := map[Outcome]int{}
	attempts := 0
	for {
		attempts++
		value, err := fn(ctx)
		outcome := Classify(err)
		if outcome == OutcomeOK {
			return value, nil
		}
		if outcome == OutcomeFatal {
			var zero T
			return zero, err
		}

		limit := bounds.limit(outcome)
		if limit != Unbounded && retries[outcome] >= limit {
			var zero T
			return zero, &RetryExhaustedError{
				What:     what,
				Outcome:  outcome,
				Attempts: attempts,
				Err:      err,
			}
		}
		retries[outcome]++
		tel.ReportWarning(id, "retrying", what, outcome.String(), retries[outcome], err)

		err = sleep(ctx, delay)
		if err != nil {
			var zero T
			return zero, err
		}
	}
}
