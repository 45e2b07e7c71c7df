package ratelimit

import (
	"net/http"
	"strconv"

	"narrata/internal/config"
)

// HeaderDetector extracts rate-limit tier configuration from a provider's
// HTTP response headers. Header-derived limits reflect the account's
// actual current quota rather than a possibly stale tiers.toml entry, so
// Manager prefers them once a provider has returned at least one
// response. Each provider exposes the information under different
// header names, so there is one Detect method per provider rather than
// a shared parser.
type HeaderDetector struct{}

// DetectAnthropic reads anthropic-ratelimit-requests-limit and
// anthropic-ratelimit-tokens-limit. Anthropic doesn't expose a daily
// request cap or the account's concurrency ceiling in headers, so RPD
// and MaxConcurrent are left unset (the configured tier value wins).
func (HeaderDetector) DetectAnthropic(h http.Header) (config.TierConfig, bool) {
	rpm, ok := parseHeaderInt(h, "anthropic-ratelimit-requests-limit")
	if !ok {
		return config.TierConfig{}, false
	}
	tpm, ok := parseHeaderInt(h, "anthropic-ratelimit-tokens-limit")
	if !ok {
		return config.TierConfig{}, false
	}
	return config.TierConfig{DisplayName: "detected", RPM: &rpm, TPM: &tpm}, true
}

// DetectOpenAI reads x-ratelimit-limit-requests and
// x-ratelimit-limit-tokens. OpenAI doesn't expose a daily request cap or
// concurrency ceiling in headers either.
func (HeaderDetector) DetectOpenAI(h http.Header) (config.TierConfig, bool) {
	rpm, ok := parseHeaderInt(h, "x-ratelimit-limit-requests")
	if !ok {
		return config.TierConfig{}, false
	}
	tpm, ok := parseHeaderInt(h, "x-ratelimit-limit-tokens")
	if !ok {
		return config.TierConfig{}, false
	}
	return config.TierConfig{DisplayName: "detected", RPM: &rpm, TPM: &tpm}, true
}

// DetectGoogle reads x-ratelimit-limit. Gemini doesn't expose TPM or RPD
// in headers at all, so those are inferred from the RPM bracket the same
// way the free and pay-as-you-go tiers are split in the bundled
// tiers.toml defaults: 10 RPM or fewer is the free tier, anything up to
// 360 RPM is pay-as-you-go, and above that is left unset rather than
// guessed.
func (HeaderDetector) DetectGoogle(h http.Header) (config.TierConfig, bool) {
	rpm, ok := parseHeaderInt(h, "x-ratelimit-limit")
	if !ok {
		return config.TierConfig{}, false
	}
	tc := config.TierConfig{DisplayName: "detected", RPM: &rpm}
	switch {
	case rpm <= 10:
		tpm, rpd := 250_000, 250
		tc.TPM, tc.RPD = &tpm, &rpd
	case rpm <= 360:
		tpm := 4_000_000
		tc.TPM = &tpm
	}
	return tc, true
}

func parseHeaderInt(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
