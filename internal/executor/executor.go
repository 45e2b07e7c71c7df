// Package executor drives one narrative run from its first act to its
// last (or to the first unrecoverable failure), producing the complete
// execution record. cmd/narrata and internal/task both call through this
// package rather than wiring resolution, dispatch, and processing
// together themselves.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"narrata/internal/llm"
	"narrata/internal/narrative"
	"narrata/internal/observability"
	"narrata/internal/processor"
	"narrata/internal/resolve"
)

// Dispatcher is the contract internal/llm.Dispatcher satisfies. Declared
// here, on the consumer side, so this package doesn't import internal/llm
// any more deeply than its own request/response types.
type Dispatcher interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Resolver is the contract internal/resolve.Resolver satisfies.
type Resolver interface {
	Resolve(ctx context.Context, input narrative.Input) (resolve.Resolved, error)
}

// Processors is the contract internal/processor.Registry satisfies.
type Processors interface {
	Run(ctx context.Context, pc processor.Context) error
}

// Store is the contract internal/storage.Store satisfies for persisting
// the finished (or failed) execution record.
type Store interface {
	SaveExecution(ctx context.Context, rec narrative.ExecutionRecord) (string, error)
}

// Defaults supplies the model, temperature, and max_tokens an act
// dispatches with when its own configuration doesn't override them.
type Defaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Executor wires a narrative's acts through input resolution, dispatch,
// and post-act processing.
type Executor struct {
	Resolver   Resolver
	Dispatcher Dispatcher
	Processors Processors
	Store      Store
	Defaults   Defaults
}

// New builds an Executor from its four collaborators plus the
// model/temperature/max_tokens fallback every act uses unless it
// overrides one itself.
func New(resolver Resolver, dispatcher Dispatcher, processors Processors, store Store, defaults Defaults) *Executor {
	return &Executor{Resolver: resolver, Dispatcher: dispatcher, Processors: processors, Store: store, Defaults: defaults}
}

// Run executes every act in n's TOC in order, accumulating conversation
// history as it goes: before act k (0-indexed) appends its own input, the
// message list already holds the 2k User/Assistant messages from the k
// preceding acts, so act k dispatches with exactly 2k+1 messages. Only a
// response's Text becomes the assistant message; any Images it carries
// are not threaded into later acts. A
// narrative that fails validation is rejected before any record exists;
// once validation passes, the returned record is always persisted,
// whether the narrative completed or aborted partway through.
func (e *Executor) Run(ctx context.Context, n narrative.Narrative) (narrative.ExecutionRecord, error) {
	if err := n.Validate(); err != nil {
		return narrative.ExecutionRecord{}, err
	}

	rec := narrative.ExecutionRecord{
		NarrativeName: n.Name,
		NarrativeDesc: n.Description,
		Status:        narrative.StatusRunning,
		StartedAt:     time.Now(),
	}

	var messages []llm.Message

	for _, actName := range n.TOC {
		act := n.Acts[actName]

		userText, media, err := e.resolveInputs(ctx, act.Inputs)
		if err != nil {
			rec.MarkFailed(time.Now(), err)
			e.persist(ctx, rec)
			return rec, err
		}
		messages = append(messages, llm.Message{Role: "user", Content: userText})

		model, temperature, maxTokens := e.effectiveParams(act)
		req := llm.Request{
			Model:       model,
			Messages:    append([]llm.Message(nil), messages...),
			Media:       media,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		}

		started := time.Now()
		resp, err := e.Dispatcher.Generate(ctx, req)
		if err != nil {
			rec.MarkFailed(time.Now(), fmt.Errorf("act %q: %w", actName, err))
			e.persist(ctx, rec)
			return rec, err
		}

		actExec := narrative.ActExecution{
			Sequence: rec.NextSequence(), ActName: actName, Inputs: act.Inputs,
			Model: model, Temperature: temperature, MaxTokens: maxTokens,
			Response: resp.Text, StartedAt: started, CompletedAt: time.Now(),
		}
		rec.Acts = append(rec.Acts, actExec)
		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Text})

		if e.Processors != nil {
			pc := processor.Context{NarrativeName: n.Name, Narrative: n, Act: actExec}
			if perr := e.Processors.Run(ctx, pc); perr != nil {
				observability.LoggerWithTrace(ctx).Warn().Err(perr).
					Str("narrative", n.Name).Str("act", actName).
					Msg("processor registry reported failures, continuing narrative")
			}
		}
	}

	rec.MarkCompleted(time.Now())
	e.persist(ctx, rec)
	return rec, nil
}

// resolveInputs turns one act's input list into the user-turn text and
// any media parts to attach to the dispatch request. A required
// bot-command failure aborts (the error propagates); internal/resolve
// already substitutes synthetic failure text for non-required ones, so
// this loop never needs to special-case that here.
func (e *Executor) resolveInputs(ctx context.Context, inputs []narrative.Input) (string, []llm.MediaPart, error) {
	var texts []string
	var media []llm.MediaPart
	for _, in := range inputs {
		resolved, err := e.Resolver.Resolve(ctx, in)
		if err != nil {
			return "", nil, err
		}
		if resolved.Text != "" {
			texts = append(texts, resolved.Text)
		}
		if resolved.Media != nil {
			media = append(media, *resolved.Media)
		}
	}
	return strings.Join(texts, "\n\n"), media, nil
}

func (e *Executor) effectiveParams(act narrative.ActConfig) (model string, temperature float64, maxTokens int) {
	model, temperature, maxTokens = e.Defaults.Model, e.Defaults.Temperature, e.Defaults.MaxTokens
	if act.Model != nil {
		model = *act.Model
	}
	if act.Temperature != nil {
		temperature = *act.Temperature
	}
	if act.MaxTokens != nil {
		maxTokens = *act.MaxTokens
	}
	return model, temperature, maxTokens
}

func (e *Executor) persist(ctx context.Context, rec narrative.ExecutionRecord) {
	if _, err := e.Store.SaveExecution(ctx, rec); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).
			Str("narrative", rec.NarrativeName).Str("status", string(rec.Status)).
			Msg("failed to persist narrative execution record")
	}
}
