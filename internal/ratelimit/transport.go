package ratelimit

import (
	"net/http"
	"strings"
)

// Observer receives a provider name and the response headers narrata's
// own outgoing request to that provider produced. Manager implements it.
type Observer interface {
	Observe(provider string, headers http.Header)
}

// ObservingTransport wraps an http.RoundTripper and feeds every response
// it sees to an Observer, tagged with the provider inferred from the
// request host. It never alters the request or response — a failed
// round trip, or a host it doesn't recognize, passes through untouched.
type ObservingTransport struct {
	next     http.RoundTripper
	observer Observer
}

// NewObservingTransport wraps next so narrata's shared httpClient can
// auto-detect rate-limit tiers from live provider responses without any
// component that calls that client needing to know detection happens.
func NewObservingTransport(next http.RoundTripper, observer Observer) *ObservingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &ObservingTransport{next: next, observer: observer}
}

func (t *ObservingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if provider, ok := providerForHost(req.URL.Host); ok {
		t.observer.Observe(provider, resp.Header)
	}
	return resp, err
}

func providerForHost(host string) (string, bool) {
	switch {
	case strings.Contains(host, "anthropic.com"):
		return "anthropic", true
	case strings.Contains(host, "openai.com"):
		return "openai", true
	case strings.Contains(host, "generativelanguage.googleapis.com"):
		return "google", true
	default:
		return "", false
	}
}
