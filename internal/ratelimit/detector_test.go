package ratelimit

import (
	"net/http"
	"testing"
)

func TestDetectAnthropicParsesRequestAndTokenLimits(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-ratelimit-requests-limit", "50")
	h.Set("anthropic-ratelimit-tokens-limit", "40000")

	tc, ok := HeaderDetector{}.DetectAnthropic(h)
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if tc.RPM == nil || *tc.RPM != 50 {
		t.Fatalf("got RPM %v, want 50", tc.RPM)
	}
	if tc.TPM == nil || *tc.TPM != 40000 {
		t.Fatalf("got TPM %v, want 40000", tc.TPM)
	}
	if tc.RPD != nil {
		t.Fatalf("expected RPD to stay unset, got %v", tc.RPD)
	}
}

func TestDetectAnthropicMissingHeaderFails(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-ratelimit-requests-limit", "50")
	if _, ok := HeaderDetector{}.DetectAnthropic(h); ok {
		t.Fatal("expected detection to fail without the token-limit header")
	}
}

func TestDetectOpenAIParsesRequestAndTokenLimits(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-limit-requests", "500")
	h.Set("x-ratelimit-limit-tokens", "200000")

	tc, ok := HeaderDetector{}.DetectOpenAI(h)
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if tc.RPM == nil || *tc.RPM != 500 {
		t.Fatalf("got RPM %v, want 500", tc.RPM)
	}
	if tc.TPM == nil || *tc.TPM != 200000 {
		t.Fatalf("got TPM %v, want 200000", tc.TPM)
	}
}

func TestDetectGoogleInfersTPMAndRPDFromFreeTierRPM(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-limit", "10")

	tc, ok := HeaderDetector{}.DetectGoogle(h)
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if tc.TPM == nil || *tc.TPM != 250_000 {
		t.Fatalf("got TPM %v, want 250000", tc.TPM)
	}
	if tc.RPD == nil || *tc.RPD != 250 {
		t.Fatalf("got RPD %v, want 250", tc.RPD)
	}
}

func TestDetectGoogleInfersTPMOnlyForPayAsYouGoRPM(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-limit", "360")

	tc, ok := HeaderDetector{}.DetectGoogle(h)
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if tc.TPM == nil || *tc.TPM != 4_000_000 {
		t.Fatalf("got TPM %v, want 4000000", tc.TPM)
	}
	if tc.RPD != nil {
		t.Fatalf("expected RPD to stay unset above the free tier, got %v", tc.RPD)
	}
}

func TestDetectGoogleLeavesTPMAndRPDUnsetAboveKnownBrackets(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-limit", "1000")

	tc, ok := HeaderDetector{}.DetectGoogle(h)
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if tc.TPM != nil || tc.RPD != nil {
		t.Fatalf("expected TPM and RPD to stay unset, got TPM=%v RPD=%v", tc.TPM, tc.RPD)
	}
}

func TestDetectMissingOrInvalidHeaderFails(t *testing.T) {
	if _, ok := (HeaderDetector{}).DetectGoogle(http.Header{}); ok {
		t.Fatal("expected detection to fail with no header present")
	}
	h := http.Header{}
	h.Set("x-ratelimit-limit", "not-a-number")
	if _, ok := (HeaderDetector{}).DetectGoogle(h); ok {
		t.Fatal("expected detection to fail on a non-numeric header")
	}
}
