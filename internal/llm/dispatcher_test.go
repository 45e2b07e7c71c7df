package llm

import (
	"context"
	"net/http"
	"testing"

	"narrata/internal/config"
)

type fakeProvider struct {
	chatCalls int
	failTimes int
	response  Response
	err       error
}

func (f *fakeProvider) Chat(ctx context.Context, req Request) (Response, error) {
	f.chatCalls++
	if f.chatCalls <= f.failTimes {
		return Response{}, f.err
	}
	return f.response, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req Request, yield func(Chunk) error) error {
	f.chatCalls++
	if err := yield(Chunk{Text: "hello"}); err != nil {
		return err
	}
	return yield(Chunk{IsFinal: true, FinishReason: "stop"})
}

type fakeLimiter struct {
	acquireCalls int
	lastEstimate int
}

func (f *fakeLimiter) Acquire(ctx context.Context, model string, estimatedTokens int) (func(), error) {
	f.acquireCalls++
	f.lastEstimate = estimatedTokens
	return func() {}, nil
}

func newTestDispatcher(provider Provider, limiter RateLimiter) *Dispatcher {
	pool := NewPool(config.Config{}, http.DefaultClient, func(cfg config.Config, vendor string, hc *http.Client) (Provider, error) {
		return provider, nil
	})
	return NewDispatcher(pool, limiter, nil, "anthropic")
}

func TestEstimateTokensIncludesMaxTokensDefault(t *testing.T) {
	req := Request{Messages: []Message{{Role: "user", Content: "12345678"}}}
	if got := estimateTokens(req); got != 2+1000 {
		t.Fatalf("got %d, want %d", got, 2+1000)
	}
}

func TestEstimateTokensClampsShortInputToOne(t *testing.T) {
	req := Request{Messages: []Message{{Role: "user", Content: "a"}}, MaxTokens: 50}
	if got := estimateTokens(req); got != 1+50 {
		t.Fatalf("got %d, want %d", got, 1+50)
	}
}

func TestIsLiveModelDetectsSuffixes(t *testing.T) {
	cases := map[string]bool{
		"gemini-2.0-flash-live":     true,
		"gemini-2.0-flash-exp":      true,
		"gemini-2.0-flash":          false,
		"claude-sonnet-4-5":         false,
	}
	for model, want := range cases {
		if got := isLiveModel(model); got != want {
			t.Errorf("isLiveModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestDispatcherGenerateAcquiresBeforeCallingProvider(t *testing.T) {
	provider := &fakeProvider{response: Response{Text: "hi"}}
	limiter := &fakeLimiter{}
	d := newTestDispatcher(provider, limiter)

	resp, err := d.Generate(context.Background(), Request{Model: "claude-sonnet-4-5", Messages: []Message{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi" {
		t.Fatalf("got %q, want hi", resp.Text)
	}
	if limiter.acquireCalls != 1 {
		t.Fatalf("expected Acquire to be called once, got %d", limiter.acquireCalls)
	}
	if provider.chatCalls != 1 {
		t.Fatalf("expected Chat to be called once, got %d", provider.chatCalls)
	}
}

func TestDispatcherGenerateStreamYieldsChunks(t *testing.T) {
	provider := &fakeProvider{}
	limiter := &fakeLimiter{}
	d := newTestDispatcher(provider, limiter)

	var texts []string
	err := d.GenerateStream(context.Background(), Request{Model: "claude-sonnet-4-5", Messages: []Message{{Role: "user", Content: "hello"}}}, func(c Chunk) error {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 1 || texts[0] != "hello" {
		t.Fatalf("got %v, want [hello]", texts)
	}
}

func TestDispatcherGenerateWithoutLiveSessionFailsFast(t *testing.T) {
	provider := &fakeProvider{}
	limiter := &fakeLimiter{}
	d := newTestDispatcher(provider, limiter)

	_, err := d.Generate(context.Background(), Request{Model: "gemini-2.0-flash-live"})
	if err == nil {
		t.Fatal("expected error when no live session is configured")
	}
}
