// Package ratelimit enforces the per-model quota a TierConfig describes:
// a concurrency semaphore, a requests-per-minute sliding window, a
// tokens-per-minute sliding window charged against a caller-supplied
// estimate, and a requests-per-day budget that fails fast instead of
// waiting. It implements the llm.RateLimiter interface structurally —
// internal/llm never imports this package.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"narrata/internal/config"
	narrataerrors "narrata/internal/errors"
	"narrata/internal/llm/providers"
)

// Manager resolves a model name to its effective tier and keeps one
// modelState per model, built lazily on first use.
type Manager struct {
	tree            config.TierTree
	defaultProvider string
	redisRPD        *RedisRPDCounter
	detector        HeaderDetector

	mu       sync.Mutex
	states   map[string]*modelState
	detected map[string]config.TierConfig
}

// NewManager builds a Manager from an already-merged tier tree (see
// config.LoadTierConfig) and the provider to assume for a model name
// whose prefix isn't recognized. redisRPD may be nil, in which case the
// daily budget is tracked per-process only.
func NewManager(tree config.TierTree, defaultProvider string, redisRPD *RedisRPDCounter) *Manager {
	return &Manager{
		tree:            tree,
		defaultProvider: defaultProvider,
		redisRPD:        redisRPD,
		states:          make(map[string]*modelState),
		detected:        make(map[string]config.TierConfig),
	}
}

// Observe inspects one provider HTTP response's headers for that
// provider's rate-limit header convention and, if present, records the
// detected tier as an override: the next model under that provider
// whose modelState hasn't been built yet picks it up in stateFor instead
// of (or layered onto) the configured tiers.toml tier. A model whose
// modelState already exists keeps running its existing sliding windows —
// Observe never resets an in-flight window, only influences future ones.
func (m *Manager) Observe(provider string, headers http.Header) {
	var (
		tc config.TierConfig
		ok bool
	)
	switch provider {
	case "anthropic":
		tc, ok = m.detector.DetectAnthropic(headers)
	case "openai":
		tc, ok = m.detector.DetectOpenAI(headers)
	case "google":
		tc, ok = m.detector.DetectGoogle(headers)
	}
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detected[provider] = tc
}

// Acquire blocks until model has budget for one request estimated to cost
// estimatedTokens, then returns a release func the caller must call once
// the request completes (successfully or not) to free the concurrency
// slot. It returns an error immediately, without waiting, when the
// model's daily request budget is exhausted.
func (m *Manager) Acquire(ctx context.Context, model string, estimatedTokens int) (func(), error) {
	st := m.stateFor(model)
	release, err := st.acquire(ctx, estimatedTokens)
	if err != nil {
		return nil, err
	}
	if err := m.redisRPD.CheckAndIncrement(ctx, model, st.rpd); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (m *Manager) stateFor(model string) *modelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[model]; ok {
		return st
	}
	provider := providers.InferProvider(model, m.defaultProvider)
	tier := m.tree.DefaultTier(provider)
	tc, _ := m.tree.EffectiveModelTier(provider, tier, model)
	if detected, ok := m.detected[provider]; ok {
		tc = applyDetected(tc, detected)
	}
	st := newModelState(tc)
	m.states[model] = st
	return st
}

// applyDetected overrides configured with the header-detected fields
// that are present; a field Detect left nil (because the provider
// doesn't expose it in headers) keeps the configured value.
func applyDetected(configured, detected config.TierConfig) config.TierConfig {
	if detected.RPM != nil {
		configured.RPM = detected.RPM
	}
	if detected.TPM != nil {
		configured.TPM = detected.TPM
	}
	if detected.RPD != nil {
		configured.RPD = detected.RPD
	}
	if detected.MaxConcurrent != nil {
		configured.MaxConcurrent = detected.MaxConcurrent
	}
	return configured
}

type tpmEntry struct {
	at     time.Time
	tokens int
}

// modelState holds the sliding-window and semaphore state for one model.
// A nil/zero limit field in TierConfig means unlimited for that axis.
type modelState struct {
	rpm           int
	tpm           int
	rpd           int
	maxConcurrent int

	sem chan struct{}

	mu        sync.Mutex
	rpmWindow []time.Time
	tpmWindow []tpmEntry
	day       string
	rpdCount  int
}

func newModelState(tc config.TierConfig) *modelState {
	st := &modelState{
		rpm: intOrZero(tc.RPM),
		tpm: intOrZero(tc.TPM),
		rpd: intOrZero(tc.RPD),
	}
	st.maxConcurrent = intOrZero(tc.MaxConcurrent)
	if st.maxConcurrent > 0 {
		st.sem = make(chan struct{}, st.maxConcurrent)
	}
	return st
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// acquire runs the four-step acquisition order: concurrency semaphore,
// then the requests-per-minute window, then the tokens-per-minute window
// for the estimate, then the requests-per-day budget.
func (s *modelState) acquire(ctx context.Context, estimatedTokens int) (func(), error) {
	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	release := func() {
		if s.sem != nil {
			<-s.sem
		}
	}

	if err := s.waitRPM(ctx); err != nil {
		release()
		return nil, err
	}
	if err := s.waitTPM(ctx, estimatedTokens); err != nil {
		release()
		return nil, err
	}
	if err := s.checkRPD(); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (s *modelState) waitRPM(ctx context.Context) error {
	if s.rpm <= 0 {
		return nil
	}
	for {
		now := time.Now()
		s.mu.Lock()
		s.rpmWindow = pruneBefore(s.rpmWindow, now.Add(-time.Minute))
		if len(s.rpmWindow) < s.rpm {
			s.rpmWindow = append(s.rpmWindow, now)
			s.mu.Unlock()
			return nil
		}
		wait := s.rpmWindow[0].Add(time.Minute).Sub(now)
		s.mu.Unlock()
		if err := sleepOrDone(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *modelState) waitTPM(ctx context.Context, estimatedTokens int) error {
	if s.tpm <= 0 {
		return nil
	}
	for {
		now := time.Now()
		s.mu.Lock()
		s.tpmWindow = pruneTPMBefore(s.tpmWindow, now.Add(-time.Minute))
		var total int
		for _, e := range s.tpmWindow {
			total += e.tokens
		}
		if total+estimatedTokens <= s.tpm {
			s.tpmWindow = append(s.tpmWindow, tpmEntry{at: now, tokens: estimatedTokens})
			s.mu.Unlock()
			return nil
		}
		wait := time.Second
		if len(s.tpmWindow) > 0 {
			wait = s.tpmWindow[0].at.Add(time.Minute).Sub(now)
		}
		s.mu.Unlock()
		if err := sleepOrDone(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *modelState) checkRPD() error {
	if s.rpd <= 0 {
		return nil
	}
	today := time.Now().UTC().Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.day != today {
		s.day = today
		s.rpdCount = 0
	}
	if s.rpdCount >= s.rpd {
		return narrataerrors.New(narrataerrors.KindRateLimitExceeded, narrataerrors.ReasonRequestsPerDayExceeded, "daily request budget exhausted")
	}
	s.rpdCount++
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func pruneBefore(s []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(s) && s[i].Before(cutoff) {
		i++
	}
	return s[i:]
}

func pruneTPMBefore(s []tpmEntry, cutoff time.Time) []tpmEntry {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}
