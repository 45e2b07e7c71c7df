package executor

import (
	"context"
	"errors"
	"testing"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm"
	"narrata/internal/narrative"
	"narrata/internal/processor"
	"narrata/internal/resolve"
)

type fakeResolver struct {
	text string
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, input narrative.Input) (resolve.Resolved, error) {
	if f.err != nil {
		return resolve.Resolved{}, f.err
	}
	if f.text != "" {
		return resolve.Resolved{Text: f.text}, nil
	}
	return resolve.Resolved{Text: input.Text}, nil
}

type fakeDispatcher struct {
	requests []llm.Request
	response llm.Response
	err      error
}

func (f *fakeDispatcher) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return f.response, nil
}

type fakeProcessors struct {
	calls int
	err   error
}

func (f *fakeProcessors) Run(ctx context.Context, pc processor.Context) error {
	f.calls++
	return f.err
}

type fakeStore struct {
	saved []narrative.ExecutionRecord
	err   error
}

func (f *fakeStore) SaveExecution(ctx context.Context, rec narrative.ExecutionRecord) (string, error) {
	f.saved = append(f.saved, rec)
	return "1", f.err
}

func twoActNarrative() narrative.Narrative {
	return narrative.Narrative{
		Name: "story",
		TOC:  []string{"intro", "climax"},
		Acts: map[string]narrative.ActConfig{
			"intro":  {Inputs: []narrative.Input{{Kind: narrative.InputText, Text: "begin"}}},
			"climax": {Inputs: []narrative.Input{{Kind: narrative.InputText, Text: "end"}}},
		},
	}
}

func TestRunBuildsGrowingConversationHistory(t *testing.T) {
	resolver := &fakeResolver{}
	dispatcher := &fakeDispatcher{response: llm.Response{Text: "reply"}}
	store := &fakeStore{}
	procs := &fakeProcessors{}

	e := New(resolver, dispatcher, procs, store, Defaults{Model: "claude-haiku", Temperature: 0.5, MaxTokens: 512})
	rec, err := e.Run(context.Background(), twoActNarrative())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != narrative.StatusCompleted {
		t.Fatalf("expected completed status, got %v", rec.Status)
	}
	if len(rec.Acts) != 2 {
		t.Fatalf("expected 2 act executions, got %d", len(rec.Acts))
	}
	if rec.Acts[0].Sequence != 0 || rec.Acts[1].Sequence != 1 {
		t.Fatalf("expected dense sequence numbers, got %d and %d", rec.Acts[0].Sequence, rec.Acts[1].Sequence)
	}

	if len(dispatcher.requests) != 2 {
		t.Fatalf("expected 2 dispatch calls, got %d", len(dispatcher.requests))
	}
	if len(dispatcher.requests[0].Messages) != 1 {
		t.Fatalf("expected act 0 to dispatch with 1 message, got %d", len(dispatcher.requests[0].Messages))
	}
	if len(dispatcher.requests[1].Messages) != 3 {
		t.Fatalf("expected act 1 to dispatch with 3 messages, got %d", len(dispatcher.requests[1].Messages))
	}
	if dispatcher.requests[1].Messages[0].Role != "user" || dispatcher.requests[1].Messages[1].Role != "assistant" || dispatcher.requests[1].Messages[2].Role != "user" {
		t.Fatalf("expected alternating user/assistant/user, got %+v", dispatcher.requests[1].Messages)
	}

	if procs.calls != 2 {
		t.Fatalf("expected the processor registry to run once per act, got %d", procs.calls)
	}
	if len(store.saved) != 1 || store.saved[0].Status != narrative.StatusCompleted {
		t.Fatalf("expected one completed save, got %+v", store.saved)
	}
}

func TestRunUsesActOverridesOverDefaults(t *testing.T) {
	resolver := &fakeResolver{}
	dispatcher := &fakeDispatcher{response: llm.Response{Text: "reply"}}
	store := &fakeStore{}
	procs := &fakeProcessors{}

	overrideModel := "gpt-4o"
	overrideTemp := 0.1
	overrideTokens := 200
	n := narrative.Narrative{
		Name: "story",
		TOC:  []string{"intro"},
		Acts: map[string]narrative.ActConfig{
			"intro": {
				Inputs:      []narrative.Input{{Kind: narrative.InputText, Text: "begin"}},
				Model:       &overrideModel,
				Temperature: &overrideTemp,
				MaxTokens:   &overrideTokens,
			},
		},
	}

	e := New(resolver, dispatcher, procs, store, Defaults{Model: "claude-haiku", Temperature: 0.7, MaxTokens: 1000})
	if _, err := e.Run(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := dispatcher.requests[0]
	if got.Model != overrideModel || got.Temperature != overrideTemp || got.MaxTokens != overrideTokens {
		t.Fatalf("expected act overrides to win, got %+v", got)
	}
}

func TestRunAbortsOnDispatchFailure(t *testing.T) {
	resolver := &fakeResolver{}
	dispatcher := &fakeDispatcher{err: errors.New("provider down")}
	store := &fakeStore{}
	procs := &fakeProcessors{}

	e := New(resolver, dispatcher, procs, store, Defaults{Model: "claude-haiku"})
	rec, err := e.Run(context.Background(), twoActNarrative())
	if err == nil {
		t.Fatal("expected the dispatch error to propagate")
	}
	if rec.Status != narrative.StatusFailed {
		t.Fatalf("expected failed status, got %v", rec.Status)
	}
	if len(rec.Acts) != 0 {
		t.Fatalf("expected no completed act executions, got %d", len(rec.Acts))
	}
	if len(dispatcher.requests) != 1 {
		t.Fatalf("expected the run to stop after the first act's dispatch failure, got %d calls", len(dispatcher.requests))
	}
	if len(store.saved) != 1 || store.saved[0].Status != narrative.StatusFailed {
		t.Fatalf("expected one failed save, got %+v", store.saved)
	}
}

func TestRunAbortsOnRequiredInputResolutionFailure(t *testing.T) {
	resolver := &fakeResolver{err: narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonBotCommandFailed, "bot down")}
	dispatcher := &fakeDispatcher{response: llm.Response{Text: "reply"}}
	store := &fakeStore{}
	procs := &fakeProcessors{}

	e := New(resolver, dispatcher, procs, store, Defaults{Model: "claude-haiku"})
	rec, err := e.Run(context.Background(), twoActNarrative())
	if err == nil {
		t.Fatal("expected the resolution error to propagate")
	}
	if rec.Status != narrative.StatusFailed {
		t.Fatalf("expected failed status, got %v", rec.Status)
	}
	if len(dispatcher.requests) != 0 {
		t.Fatalf("expected dispatch to never run, got %d calls", len(dispatcher.requests))
	}
}

func TestRunContinuesWhenProcessorsFail(t *testing.T) {
	resolver := &fakeResolver{}
	dispatcher := &fakeDispatcher{response: llm.Response{Text: "reply"}}
	store := &fakeStore{}
	procs := &fakeProcessors{err: errors.New("processor exploded")}

	e := New(resolver, dispatcher, procs, store, Defaults{Model: "claude-haiku"})
	rec, err := e.Run(context.Background(), twoActNarrative())
	if err != nil {
		t.Fatalf("expected processor failures not to fail the run, got %v", err)
	}
	if rec.Status != narrative.StatusCompleted {
		t.Fatalf("expected completed status despite processor failures, got %v", rec.Status)
	}
}

func TestRunRejectsInvalidNarrative(t *testing.T) {
	resolver := &fakeResolver{}
	dispatcher := &fakeDispatcher{}
	store := &fakeStore{}
	procs := &fakeProcessors{}

	e := New(resolver, dispatcher, procs, store, Defaults{})
	_, err := e.Run(context.Background(), narrative.Narrative{})
	var ne *narrataerrors.Error
	if !narrataerrors.As(err, &ne) || ne.Kind != narrataerrors.KindNarrativeInvalid {
		t.Fatalf("expected a narrative_invalid error, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected an invalid narrative to never reach storage, got %d saves", len(store.saved))
	}
}
