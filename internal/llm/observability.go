package llm

import (
	"context"
	"encoding/json"
	"sync"

	"narrata/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu                   sync.RWMutex
	enablePayloadLogging = false
)

// ConfigureLogging toggles whether dispatch logs redacted prompt/response
// payloads at debug level. Off by default.
func ConfigureLogging(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	enablePayloadLogging = enable
}

func shouldLog() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enablePayloadLogging
}

// StartRequestSpan starts a tracer span for a dispatch call.
func StartRequestSpan(ctx context.Context, operation, model string, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(attribute.String("llm.model", model), attribute.Int("llm.messages", messages))
	return ctx, span
}

// LogRedactedPrompt logs a redacted copy of the request messages at debug
// level, a no-op unless ConfigureLogging(true) was called.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	if !shouldLog() {
		return
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	log := observability.LoggerWithTrace(ctx).With().RawJSON("prompt", red).Logger()
	log.Debug().Msg("llm_request")
}

// LogRedactedResponse logs a redacted copy of the response at debug level.
func LogRedactedResponse(ctx context.Context, resp Response) {
	if !shouldLog() {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	log := observability.LoggerWithTrace(ctx).With().RawJSON("response", red).Logger()
	log.Debug().Msg("llm_response")
}

// RecordTokenAttributes sets token-count attributes on the request span.
func RecordTokenAttributes(span trace.Span, promptTokens, completionTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
		attribute.Int("llm.total_tokens", promptTokens+completionTokens),
	)
}

var (
	tokenOnce         sync.Once
	promptCounter     otelmetric.Int64Counter
	completionCounter otelmetric.Int64Counter
)

func ensureTokenInstruments() {
	tokenOnce.Do(func() {
		m := otel.Meter("internal/llm")
		promptCounter, _ = m.Int64Counter("llm.prompt_tokens", otelmetric.WithDescription("Cumulative prompt tokens by model"))
		completionCounter, _ = m.Int64Counter("llm.completion_tokens", otelmetric.WithDescription("Cumulative completion tokens by model"))
	})
}

// RecordTokenMetrics records per-model token usage as OTel counters.
func RecordTokenMetrics(ctx context.Context, model string, promptTokens, completionTokens int) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ensureTokenInstruments()
	if promptCounter != nil && promptTokens > 0 {
		promptCounter.Add(ctx, int64(promptTokens), otelmetric.WithAttributes(attribute.String("llm.model", model)))
	}
	if completionCounter != nil && completionTokens > 0 {
		completionCounter.Add(ctx, int64(completionTokens), otelmetric.WithAttributes(attribute.String("llm.model", model)))
	}
}
