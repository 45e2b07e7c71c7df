package narrative

import (
	"testing"

	narrataerrors "narrata/internal/errors"
)

func TestValidateEmptyTOC(t *testing.T) {
	n := Narrative{Acts: map[string]ActConfig{}}
	err := n.Validate()
	if !narrataerrors.Is(err, narrataerrors.KindNarrativeInvalid) {
		t.Fatalf("expected KindNarrativeInvalid, got %v", err)
	}
	var target *narrataerrors.Error
	if !narrataerrors.As(err, &target) || target.Reason != narrataerrors.ReasonEmptyToc {
		t.Fatalf("expected ReasonEmptyToc, got %+v", target)
	}
}

func TestValidateMissingAct(t *testing.T) {
	n := Narrative{
		TOC:  []string{"intro", "missing"},
		Acts: map[string]ActConfig{"intro": {Inputs: []Input{{Kind: InputText, Text: "hi"}}}},
	}
	err := n.Validate()
	var target *narrataerrors.Error
	if !narrataerrors.As(err, &target) || target.Reason != narrataerrors.ReasonMissingAct {
		t.Fatalf("expected ReasonMissingAct, got %v", err)
	}
}

func TestValidateEmptyPrompt(t *testing.T) {
	n := Narrative{
		TOC:  []string{"intro"},
		Acts: map[string]ActConfig{"intro": {Inputs: []Input{}}},
	}
	err := n.Validate()
	var target *narrataerrors.Error
	if !narrataerrors.As(err, &target) || target.Reason != narrataerrors.ReasonEmptyPrompt {
		t.Fatalf("expected ReasonEmptyPrompt for no inputs, got %v", err)
	}

	n.Acts["intro"] = ActConfig{Inputs: []Input{{Kind: InputText, Text: ""}}}
	err = n.Validate()
	if !narrataerrors.As(err, &target) || target.Reason != narrataerrors.ReasonEmptyPrompt {
		t.Fatalf("expected ReasonEmptyPrompt for blank text input, got %v", err)
	}
}

func TestValidateAcceptsWellFormedNarrative(t *testing.T) {
	n := Narrative{
		TOC: []string{"intro"},
		Acts: map[string]ActConfig{
			"intro": {Inputs: []Input{{Kind: InputBot, Platform: "slack", Command: "post"}}},
		},
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("expected valid narrative, got %v", err)
	}
}
