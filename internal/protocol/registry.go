package protocol

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nao1215/bebop/internal/uri"
)

// Registry maps URL schemes to handlers. It is filled at startup, frozen,
// and then only read, so lookups from concurrent navigations are safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under its own scheme.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("cannot register a nil handler")
	}
	return r.RegisterScheme(h.Scheme(), h)
}

// RegisterScheme adds h under scheme. It is the entry point for plugins.
// Registering a scheme twice fails with ErrDuplicateScheme, and
// registering after Freeze fails with ErrRegistryFrozen.
func (r *Registry) RegisterScheme(scheme string, h Handler) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		return fmt.Errorf("cannot register an empty scheme")
	}
	if h == nil {
		return fmt.Errorf("cannot register a nil handler for %q", scheme)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, scheme)
	}
	if _, ok := r.handlers[scheme]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateScheme, scheme)
	}
	r.handlers[scheme] = h
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the handler for scheme.
func (r *Registry) Lookup(scheme string) (Handler, error) {
	scheme = strings.ToLower(scheme)

	r.mu.RLock()
	h, ok := r.handlers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return h, nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	schemes := make([]string, 0, len(r.handlers))
	for s := range r.handlers {
		schemes = append(schemes, s)
	}
	r.mu.RUnlock()

	sort.Strings(schemes)
	return schemes
}

// Fetch looks up the handler for u and performs the request.
func (r *Registry) Fetch(ctx context.Context, u *uri.URL) (*Response, error) {
	h, err := r.Lookup(u.Scheme)
	if err != nil {
		return nil, err
	}
	resp, err := h.Fetch(ctx, u)
	if err == nil && resp == nil {
		return nil, NewProtocolError("handler for %q returned no response", u.Scheme)
	}
	return resp, err
}
