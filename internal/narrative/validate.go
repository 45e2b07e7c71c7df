package narrative

import (
	"fmt"

	narrataerrors "narrata/internal/errors"
)

// Validate checks the narrative's boundary conditions: a TOC cannot be
// empty, every act it names must exist, and every act must have at least
// one input (an empty prompt is never valid, whether the act was written
// as a bare string or an input list).
func (n Narrative) Validate() error {
	if len(n.TOC) == 0 {
		return narrataerrors.New(narrataerrors.KindNarrativeInvalid, narrataerrors.ReasonEmptyToc, "narrative toc is empty")
	}
	for _, name := range n.TOC {
		act, ok := n.Acts[name]
		if !ok {
			return narrataerrors.New(narrataerrors.KindNarrativeInvalid, narrataerrors.ReasonMissingAct,
				fmt.Sprintf("toc references undefined act %q", name))
		}
		if err := act.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (a ActConfig) validate(name string) error {
	if len(a.Inputs) == 0 {
		return narrataerrors.New(narrataerrors.KindNarrativeInvalid, narrataerrors.ReasonEmptyPrompt,
			fmt.Sprintf("act %q has no inputs", name))
	}
	for _, in := range a.Inputs {
		if in.Kind == InputText && in.Text == "" {
			return narrataerrors.New(narrataerrors.KindNarrativeInvalid, narrataerrors.ReasonEmptyPrompt,
				fmt.Sprintf("act %q has an empty text input", name))
		}
	}
	return nil
}
