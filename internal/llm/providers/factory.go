// Package providers builds a concrete llm.Provider for a named vendor and
// infers which vendor backs a given model name.
package providers

import (
	"net/http"
	"strings"

	"narrata/internal/config"
	"narrata/internal/llm"
	"narrata/internal/llm/anthropic"
	"narrata/internal/llm/google"
	"narrata/internal/llm/openai"

	narrataerrors "narrata/internal/errors"
)

// Build constructs an llm.Provider for the named vendor ("anthropic",
// "openai", "google"). httpClient may be nil, in which case each client
// falls back to http.DefaultClient.
func Build(cfg config.Config, provider string, httpClient *http.Client) (llm.Provider, error) {
	switch provider {
	case "anthropic":
		if strings.TrimSpace(cfg.Anthropic.APIKey) == "" {
			return nil, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonMissingAPIKey, "ANTHROPIC_API_KEY is not set")
		}
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
			return nil, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonMissingAPIKey, "OPENAI_API_KEY is not set")
		}
		return openai.New(cfg.OpenAI, httpClient), nil
	case "google":
		return google.New(cfg.Google, httpClient)
	default:
		return nil, narrataerrors.New(narrataerrors.KindLLMProvider, narrataerrors.ReasonFeatureUnsupported, "unknown provider: "+provider)
	}
}

// InferProvider guesses which vendor a model name belongs to from its
// prefix, falling back to defaultProvider when the prefix is unrecognized.
// Narrative act definitions reference bare model names, not vendor names, so
// the dispatcher needs this to route a "claude-..." or "gemini-..." model to
// the right client without every narrative author repeating the vendor.
func InferProvider(model, defaultProvider string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude-"):
		return "anthropic"
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "openai"
	case strings.HasPrefix(m, "gemini-"):
		return "google"
	default:
		return defaultProvider
	}
}
