package content

import (
	"context"

	"narrata/internal/processor"
)

// Processor adapts an Actor into the processor.Processor contract so the
// registry can run content generation as one of the things that happens
// after an act completes, alongside any other registered processor.
type Processor struct {
	actor *Actor
}

var _ processor.Processor = (*Processor)(nil)

// NewProcessor wraps a running Actor for registration with a
// processor.Registry.
func NewProcessor(a *Actor) *Processor {
	return &Processor{actor: a}
}

func (p *Processor) Name() string { return "content-generation" }

// ShouldProcess mirrors ProcessResponse's own skip check so a narrative
// that opts out never even reaches the actor's mailbox.
func (p *Processor) ShouldProcess(ctx context.Context, pc processor.Context) bool {
	return !pc.Narrative.SkipContentGeneration
}

func (p *Processor) Process(ctx context.Context, pc processor.Context) error {
	_, err := p.actor.ProcessResponse(ctx, pc.Narrative, pc.Act.ActName, pc.Act.Model, pc.Act.Response)
	return err
}
