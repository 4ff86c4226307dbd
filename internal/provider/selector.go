// Package provider chooses which AI backend serves generation requests.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

// Selector keeps an ordered list of backends and caches the first usable one.
type Selector struct {
	mu       sync.Mutex
	backends []ports.Provider
	active   ports.Provider
	logger   *slog.Logger
}

// BackendStatus describes one registered backend.
type BackendStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	Active     bool   `json:"active"`
}

// NewSelector builds a selector over backends in priority order.
func NewSelector(logger *slog.Logger, backends ...ports.Provider) *Selector {
	s := &Selector{logger: logger}
	for _, b := range backends {
		s.Register(b)
	}
	return s
}

// Register appends a backend at the lowest priority, replacing one with the same name.
func (s *Selector) Register(backend ports.Provider) {
	if backend == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.backends {
		if existing.Name() == backend.Name() {
			s.backends[i] = backend
			return
		}
	}
	s.backends = append(s.backends, backend)
}

// Resolve returns a backend by name or an error if it is absent.
func (s *Selector) Resolve(name string) (ports.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.backends {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("provider %s is not registered", name)
}

// Active returns the cached backend, selecting the first configured and
// healthy one on first use. Failed selections are not cached.
func (s *Selector) Active(ctx context.Context) (ports.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return s.active, nil
	}

	var reasons []string
	for _, b := range s.backends {
		if !b.Configured() {
			reasons = append(reasons, b.Name()+": not configured")
			continue
		}
		if !b.HealthCheck(ctx) {
			reasons = append(reasons, b.Name()+": health check failed")
			continue
		}
		s.active = b
		s.info("provider selected", "provider", b.Name())
		return b, nil
	}

	if len(reasons) == 0 {
		return nil, fmt.Errorf("%w: no providers registered", domain.ErrProviderUnavailable)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProviderUnavailable, strings.Join(reasons, "; "))
}

// Switch replaces the cached backend with the named one if it is usable.
func (s *Selector) Switch(ctx context.Context, name string) error {
	backend, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if !backend.Configured() {
		return fmt.Errorf("%w: %s is not configured", domain.ErrProviderUnavailable, name)
	}
	if !backend.HealthCheck(ctx) {
		return fmt.Errorf("%w: %s failed its health check", domain.ErrProviderUnavailable, name)
	}

	s.mu.Lock()
	s.active = backend
	s.mu.Unlock()
	s.info("provider switched", "provider", name)
	return nil
}

// Statuses probes every backend without changing the selection.
func (s *Selector) Statuses(ctx context.Context) []BackendStatus {
	s.mu.Lock()
	backends := append([]ports.Provider(nil), s.backends...)
	active := s.active
	s.mu.Unlock()

	statuses := make([]BackendStatus, 0, len(backends))
	for _, b := range backends {
		st := BackendStatus{Name: b.Name(), Configured: b.Configured(), Active: b == active}
		if st.Configured {
			st.Healthy = b.HealthCheck(ctx)
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (s *Selector) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
