package llm

import (
	"net/http"
	"sync"

	"narrata/internal/config"
)

// Pool hands out one Provider per vendor, built lazily on first use and
// kept for the life of the process. Build constructs the concrete client;
// Pool only owns the cache.
type Pool struct {
	cfg        config.Config
	httpClient *http.Client
	build      func(cfg config.Config, provider string, httpClient *http.Client) (Provider, error)

	mu        sync.Mutex
	providers map[string]Provider
}

// NewPool creates a client pool. build is injected so internal/llm never
// imports the vendor subpackages directly — only internal/llm/providers
// (and cmd/narrata, which wires the two together) does.
func NewPool(cfg config.Config, httpClient *http.Client, build func(config.Config, string, *http.Client) (Provider, error)) *Pool {
	return &Pool{
		cfg:        cfg,
		httpClient: httpClient,
		build:      build,
		providers:  make(map[string]Provider),
	}
}

// Get returns the Provider for a vendor name, constructing and caching it
// on first request. Concurrent requests for the same vendor block on the
// same construction rather than racing two clients into existence.
func (p *Pool) Get(vendor string) (Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.providers[vendor]; ok {
		return existing, nil
	}
	provider, err := p.build(p.cfg, vendor, p.httpClient)
	if err != nil {
		return nil, err
	}
	p.providers[vendor] = provider
	return provider, nil
}
