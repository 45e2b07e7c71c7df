package llm

import (
	"context"
	"strings"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm/providers"
)

// RateLimiter is the contract a rate-limit manager must satisfy to sit in
// front of dispatch. It is declared here, on the consumer side, so
// internal/llm never imports internal/ratelimit directly — cmd/narrata
// wires a *ratelimit.Manager in at startup.
//
// Acquire blocks (subject to ctx) for the concurrency semaphore, the
// requests-per-minute window and the tokens-per-minute window (charged
// with estimatedTokens), then checks the requests-per-day budget. The first of
// these that cannot be satisfied determines the returned error; a
// requests-per-day budget failure fails fast rather than waiting.
type RateLimiter interface {
	Acquire(ctx context.Context, model string, estimatedTokens int) (release func(), err error)
}

// LiveSession is the contract internal/live's session type satisfies. It is
// declared here so the Dispatcher can route "-live"/"-exp" models through
// a bidirectional session without this package importing internal/live.
type LiveSession interface {
	SendAndCollect(ctx context.Context, model string, req Request) (Response, error)
	SendAndStream(ctx context.Context, model string, req Request, yield func(Chunk) error) error
}

// Dispatcher is the single entry point narrative act execution calls
// through: it estimates token cost, acquires rate-limit budget, picks the
// REST provider or the Live session depending on the model name, and
// retries transient failures per the classification table in retry.go.
type Dispatcher struct {
	pool    *Pool
	limiter RateLimiter
	live    LiveSession
	infer   func(model, defaultProvider string) string
	fallbackProvider string
}

// NewDispatcher wires a Pool and a RateLimiter into a Dispatcher. live may
// be nil when no Live session is configured; requests to a
// "-live"/"-exp" model then fail with feature_unsupported instead of
// panicking.
func NewDispatcher(pool *Pool, limiter RateLimiter, live LiveSession, fallbackProvider string) *Dispatcher {
	return &Dispatcher{pool: pool, limiter: limiter, live: live, infer: providers.InferProvider, fallbackProvider: fallbackProvider}
}

// estimateTokens sums ceil(len(text)/4) over every text input, clamped to
// at least 1 token per non-empty input, then adds max_tokens (default 1000
// when the request doesn't set one). The estimate only ever feeds the
// tokens-per-minute rate-limit check; it is never reported as actual usage.
func estimateTokens(req Request) int {
	total := 0
	for _, m := range req.Messages {
		total += charsToTokens(m.Content)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return total + maxTokens
}

func charsToTokens(text string) int {
	n := len(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	tokens := (n + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func isLiveModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "-live") || strings.Contains(m, "-exp")
}

func (d *Dispatcher) providerFor(model string) (Provider, error) {
	vendor := d.infer(model, d.fallbackProvider)
	return d.pool.Get(vendor)
}

// Generate performs one unary generation call.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (Response, error) {
	release, err := d.limiter.Acquire(ctx, req.Model, estimateTokens(req))
	if err != nil {
		return Response{}, err
	}
	defer release()

	if isLiveModel(req.Model) {
		if d.live == nil {
			return Response{}, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonFeatureUnsupported, "live session not configured for model "+req.Model)
		}
		var out Response
		err := withRetry(ctx, RetryOverrides{}, func() error {
			var callErr error
			out, callErr = d.live.SendAndCollect(ctx, req.Model, req)
			return callErr
		})
		return out, err
	}

	provider, err := d.providerFor(req.Model)
	if err != nil {
		return Response{}, err
	}
	var out Response
	err = withRetry(ctx, RetryOverrides{}, func() error {
		var callErr error
		out, callErr = provider.Chat(ctx, req)
		return callErr
	})
	return out, err
}

// GenerateStream performs one streaming generation call, invoking yield
// for each chunk in wire order. yield returning an error stops the stream
// and propagates immediately.
func (d *Dispatcher) GenerateStream(ctx context.Context, req Request, yield func(Chunk) error) error {
	release, err := d.limiter.Acquire(ctx, req.Model, estimateTokens(req))
	if err != nil {
		return err
	}
	defer release()

	if isLiveModel(req.Model) {
		if d.live == nil {
			return narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonFeatureUnsupported, "live session not configured for model "+req.Model)
		}
		return withRetry(ctx, RetryOverrides{}, func() error {
			return d.live.SendAndStream(ctx, req.Model, req, yield)
		})
	}

	provider, err := d.providerFor(req.Model)
	if err != nil {
		return err
	}
	return withRetry(ctx, RetryOverrides{}, func() error {
		return provider.ChatStream(ctx, req, yield)
	})
}
