package ratelimit

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordingObserver struct {
	provider string
	headers  http.Header
	calls    int
}

func (r *recordingObserver) Observe(provider string, headers http.Header) {
	r.provider = provider
	r.headers = headers
	r.calls++
}

func TestObservingTransportTagsRecognizedProviderHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("anthropic-ratelimit-requests-limit", "50")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// The request names api.anthropic.com, but every dial goes to the test
	// server, so the round trip succeeds without leaving the process.
	toServer := &http.Transport{DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, network, server.Listener.Addr().String())
	}}

	obs := &recordingObserver{}
	client := &http.Client{Transport: NewObservingTransport(toServer, obs)}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error building request: %v", err)
	}
	req.URL.Host = "api.anthropic.com:" + req.URL.Port()
	req.Host = req.URL.Host

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if obs.calls != 1 {
		t.Fatalf("expected exactly one Observe call, got %d", obs.calls)
	}
	if obs.provider != "anthropic" {
		t.Fatalf("got provider %q, want anthropic", obs.provider)
	}
}

func TestObservingTransportSkipsUnrecognizedHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	obs := &recordingObserver{}
	client := &http.Client{Transport: NewObservingTransport(http.DefaultTransport, obs)}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if obs.calls != 0 {
		t.Fatalf("expected no Observe call for an unrecognized host, got %d", obs.calls)
	}
}

func TestProviderForHost(t *testing.T) {
	cases := map[string]string{
		"api.anthropic.com":                "anthropic",
		"api.openai.com":                   "openai",
		"generativelanguage.googleapis.com": "google",
	}
	for host, want := range cases {
		got, ok := providerForHost(host)
		if !ok {
			t.Fatalf("host %q: expected a recognized provider", host)
		}
		if got != want {
			t.Fatalf("host %q: got %q, want %q", host, got, want)
		}
	}
	if _, ok := providerForHost("example.com"); ok {
		t.Fatal("expected example.com to be unrecognized")
	}
}
