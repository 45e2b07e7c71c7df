package providers

import (
	"testing"

	"narrata/internal/config"
)

func TestInferProviderByPrefix(t *testing.T) {
	cases := map[string]string{
		"claude-sonnet-4-5":   "anthropic",
		"gpt-4o-mini":         "openai",
		"o3-mini":             "openai",
		"gemini-2.0-flash":    "google",
		"llama-3.1-8b":        "fallback",
		"":                    "fallback",
	}
	for model, want := range cases {
		if got := InferProvider(model, "fallback"); got != want {
			t.Errorf("InferProvider(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	if _, err := Build(config.Config{}, "unknown", nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
