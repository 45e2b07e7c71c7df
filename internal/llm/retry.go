package llm

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	narrataerrors "narrata/internal/errors"
)

// errorClass names one of the transient-error buckets dispatch errors are
// sorted into before a retry policy is picked.
type errorClass string

const (
	classHTTP429            errorClass = "http_429"
	classHTTP503            errorClass = "http_503"
	classHTTP50x            errorClass = "http_50x" // 500, 502, 504
	classHTTP408            errorClass = "http_408"
	classWebSocketHandshake errorClass = "ws_handshake"
	classStreamInterrupted  errorClass = "stream_interrupted"
	classDefaultTransient   errorClass = "default_transient"
	classPermanent          errorClass = ""
)

// retryPolicy is the {initial delay, max attempts, max single-retry delay}
// tuple an error class resolves to.
type retryPolicy struct {
	InitialDelay      time.Duration
	MaxAttempts       int
	MaxSingleRetryCap time.Duration
}

var retryPolicies = map[errorClass]retryPolicy{
	classHTTP429:            {5000 * time.Millisecond, 3, 40 * time.Second},
	classHTTP503:            {2000 * time.Millisecond, 5, 60 * time.Second},
	classHTTP50x:            {1000 * time.Millisecond, 3, 8 * time.Second},
	classHTTP408:            {2000 * time.Millisecond, 4, 30 * time.Second},
	classWebSocketHandshake: {2000 * time.Millisecond, 5, 60 * time.Second},
	classStreamInterrupted:  {1000 * time.Millisecond, 3, 10 * time.Second},
	classDefaultTransient:   {2000 * time.Millisecond, 5, 60 * time.Second},
}

// classify sorts err into a retry class. HTTP 408/429/500/502/503/504,
// WebSocket connect/handshake failures, and stream-interrupted errors are
// transient; everything else is permanent.
func classify(err error) errorClass {
	var e *narrataerrors.Error
	if narrataerrors.As(err, &e) {
		switch e.Reason {
		case narrataerrors.ReasonWebSocketHandshake:
			return classWebSocketHandshake
		case narrataerrors.ReasonStreamInterrupted:
			return classStreamInterrupted
		case narrataerrors.ReasonServerDisconnect:
			return classPermanent
		}
		if e.HTTPStatus != 0 {
			switch e.HTTPStatus {
			case 429:
				return classHTTP429
			case 503:
				return classHTTP503
			case 500, 502, 504:
				return classHTTP50x
			case 408:
				return classHTTP408
			default:
				return classPermanent
			}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classDefaultTransient
	}
	return classPermanent
}

// RetryOverrides lets a caller globally disable retry, cap attempts below
// the classification default, or raise the initial backoff. These layer on
// top of the classification-driven policy; they never replace it when the
// caller leaves a field zero.
type RetryOverrides struct {
	Disabled          bool
	MaxAttempts       int
	InitialDelayFloor time.Duration
}

// withRetry runs op, retrying on transient classification per the table in
// retryPolicies. The error class (and thus the policy) is only known once
// the first failure is observed, so the first call is unconditional and
// the policy for the remaining attempts is derived from its classification
// — matching spec behavior where "the policy parameters come from the
// error classification, not from the caller."
func withRetry(ctx context.Context, overrides RetryOverrides, op func() error) error {
	err := op()
	if err == nil || overrides.Disabled {
		return err
	}

	class := classify(err)
	if class == classPermanent {
		return err
	}

	policy := retryPolicies[class]
	maxAttempts := policy.MaxAttempts
	if overrides.MaxAttempts > 0 && overrides.MaxAttempts < maxAttempts {
		maxAttempts = overrides.MaxAttempts
	}
	initial := policy.InitialDelay
	if overrides.InitialDelayFloor > initial {
		initial = overrides.InitialDelayFloor
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = policy.MaxSingleRetryCap
	b.RandomizationFactor = 0.5
	b.Reset()

	// Attempt 1 already ran above; up to maxAttempts-1 retries remain.
	for attempt := 1; attempt < maxAttempts; attempt++ {
		delay, stop := b.NextBackOff(), false
		if delay == backoff.Stop {
			stop = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if stop {
			break
		}
		err = op()
		if err == nil {
			return nil
		}
		if classify(err) == classPermanent {
			return err
		}
	}
	return err
}

// jitter returns d scaled by a random factor in [0.5, 1.5). Nothing calls
// it: the live-session path retries through withRetry like the REST path.
func jitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(d) * factor)
}
