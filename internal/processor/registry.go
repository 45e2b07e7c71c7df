// Package processor implements the post-act processor pipeline: after
// every act, each registered Processor whose ShouldProcess predicate is
// true gets a chance to act on the result. A processor failure never
// aborts the narrative run — failures are collected and returned as one
// aggregated error after every processor has had its turn.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/narrative"
)

// Context is what a processor sees: the act that just completed, plus
// enough narrative metadata to decide whether and how to react.
type Context struct {
	NarrativeName string
	Narrative     narrative.Narrative
	Act           narrative.ActExecution
}

// Processor is the contract every registered processor implements.
type Processor interface {
	Name() string
	ShouldProcess(ctx context.Context, pc Context) bool
	Process(ctx context.Context, pc Context) error
}

// Registry holds processors in registration order and runs all matching
// ones after an act completes. Registration is expected at startup;
// Run is called concurrently from every narrative execution in flight,
// so the processor slice is guarded even though it's effectively
// insert-only once the engine is up.
type Registry struct {
	mu         sync.RWMutex
	processors []Processor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends p to the registry. Processors run in the order they
// were registered.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors = append(r.processors, p)
}

// Run invokes Process on every registered processor whose ShouldProcess
// predicate matches pc, in registration order. Every processor runs
// regardless of an earlier one's failure; failures are joined into a
// single aggregated error (nil if none failed).
func (r *Registry) Run(ctx context.Context, pc Context) error {
	r.mu.RLock()
	processors := make([]Processor, len(r.processors))
	copy(processors, r.processors)
	r.mu.RUnlock()

	var errs []error
	for _, p := range processors {
		if !p.ShouldProcess(ctx, pc) {
			continue
		}
		if err := p.Process(ctx, pc); err != nil {
			errs = append(errs, fmt.Errorf("processor %q: %w", p.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return narrataerrors.Wrap(narrataerrors.KindProcessor, "", errors.Join(errs...))
}
