package tofu

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nao1215/bebop/internal/keylock"
)

// State is the trust state of a host and port.
type State int

const (
	// StateUnknown means no usable pin exists.
	StateUnknown State = iota

	// StatePinned means the last certificate seen matched the pin, or was
	// pinned on first use.
	StatePinned

	// StateMismatched means the last certificate seen did not match the pin.
	StateMismatched
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePinned:
		return "pinned"
	case StateMismatched:
		return "mismatched"
	default:
		return "unknown"
	}
}

// Pin is the certificate fingerprint remembered for a host and port.
type Pin struct {
	Host        string
	Port        int
	Fingerprint string
	FirstSeen   time.Time
	LastSeen    time.Time

	// NotAfter is copied from the pinned certificate. The zero value means
	// the expiry is not known.
	NotAfter time.Time
}

// Backend persists pins and identities. Store writes every mutation
// through to it, except LastSeen refreshes which are flushed on Close.
type Backend interface {
	LoadPins(ctx context.Context) ([]Pin, error)
	SavePin(ctx context.Context, pin Pin) error
	DeletePin(ctx context.Context, host string, port int) error
	LoadIdentities(ctx context.Context) ([]Identity, error)
	SaveIdentity(ctx context.Context, identity Identity) error
	DeleteIdentity(ctx context.Context, id string) error
}

// mismatch remembers the certificate that failed verification so that a
// following Repin can keep its expiry date.
type mismatch struct {
	fingerprint string
	notAfter    time.Time
}

// Store is the process-wide trust store. It is safe for concurrent use.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	maxAge  time.Duration

	// locks serializes verification and mutation per "host:port".
	locks keylock.Map

	// session holds fingerprints trusted until the process exits or the
	// trust expires. It is never persisted.
	session *cache.Cache

	mu         sync.RWMutex
	pins       map[string]Pin
	mismatches map[string]mismatch
	dirty      map[string]struct{}
	identities map[string]Identity
	closed     bool
}

// Option configures a Store.
type Option func(*Store)

// WithPinMaxAge makes pins older than d count as unknown. Zero disables
// the age limit.
func WithPinMaxAge(d time.Duration) Option {
	return func(s *Store) {
		s.maxAge = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for trust decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open loads all pins and identities from backend and returns a ready Store.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:    backend,
		logger:     slog.Default(),
		now:        time.Now,
		session:    cache.New(cache.NoExpiration, 10*time.Minute),
		pins:       make(map[string]Pin),
		mismatches: make(map[string]mismatch),
		dirty:      make(map[string]struct{}),
		identities: make(map[string]Identity),
	}
	for _, opt := range opts {
		opt(s)
	}

	pins, err := backend.LoadPins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pins: %w", err)
	}
	for _, p := range pins {
		s.pins[pinKey(p.Host, p.Port)] = p
	}

	identities, err := backend.LoadIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}
	for _, id := range identities {
		s.identities[id.ID] = id
	}

	s.logger.Debug("trust store opened", "pins", len(pins), "identities", len(identities))
	return s, nil
}

// Close flushes pending LastSeen updates. The Store must not be used
// afterwards. The backend is not closed.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := make([]Pin, 0, len(s.dirty))
	for key := range s.dirty {
		if p, ok := s.pins[key]; ok {
			pending = append(pending, p)
		}
	}
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	for _, p := range pending {
		if err := s.backend.SavePin(ctx, p); err != nil {
			return fmt.Errorf("failed to flush pin for %s:%d: %w", p.Host, p.Port, err)
		}
	}
	return nil
}

// Fingerprint returns the hex-encoded SHA-256 digest of the certificate DER.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Verify checks cert against the pin for host and port. An unknown or
// expired pin is replaced by cert. A mismatch returns *PinMismatchError
// unless the fingerprint is trusted for the session.
func (s *Store) Verify(ctx context.Context, host string, port int, cert *x509.Certificate) error {
	host = strings.ToLower(host)
	key := pinKey(host, port)
	fp := Fingerprint(cert)

	unlock := s.locks.Lock(key)
	defer unlock()

	if trusted, ok := s.session.Get(key); ok && trusted.(string) == fp {
		s.logger.Debug("certificate trusted for session", "host", host, "port", port)
		return nil
	}

	now := s.now()

	s.mu.RLock()
	closed := s.closed
	pin, known := s.pins[key]
	s.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	if known && !s.expired(pin, now) {
		if pin.Fingerprint != fp {
			s.mu.Lock()
			s.mismatches[key] = mismatch{fingerprint: fp, notAfter: cert.NotAfter}
			s.mu.Unlock()

			s.logger.Warn("certificate does not match pin",
				"host", host, "port", port, "pinned", pin.Fingerprint, "got", fp)
			return &PinMismatchError{Host: host, Port: port, Expected: pin.Fingerprint, Got: fp}
		}

		pin.LastSeen = now
		s.mu.Lock()
		s.pins[key] = pin
		s.dirty[key] = struct{}{}
		delete(s.mismatches, key)
		s.mu.Unlock()
		return nil
	}

	newPin := Pin{
		Host:        host,
		Port:        port,
		Fingerprint: fp,
		FirstSeen:   now,
		LastSeen:    now,
		NotAfter:    cert.NotAfter,
	}
	if err := s.backend.SavePin(ctx, newPin); err != nil {
		return fmt.Errorf("failed to save pin for %s: %w", key, err)
	}

	s.mu.Lock()
	s.pins[key] = newPin
	delete(s.dirty, key)
	delete(s.mismatches, key)
	s.mu.Unlock()

	if known {
		s.logger.Info("expired pin replaced", "host", host, "port", port, "fingerprint", fp)
	} else {
		s.logger.Info("certificate pinned on first use", "host", host, "port", port, "fingerprint", fp)
	}
	return nil
}

// expired reports whether pin is too old or its certificate has expired.
func (s *Store) expired(pin Pin, now time.Time) bool {
	if s.maxAge > 0 && now.Sub(pin.FirstSeen) > s.maxAge {
		return true
	}
	return !pin.NotAfter.IsZero() && now.After(pin.NotAfter)
}

// Repin replaces the pin for host and port with fingerprint. It is the
// explicit user action that resolves a mismatch.
func (s *Store) Repin(ctx context.Context, host string, port int, fingerprint string) error {
	host = strings.ToLower(host)
	key := pinKey(host, port)
	fingerprint = strings.ToLower(strings.TrimSpace(fingerprint))
	if fingerprint == "" {
		return fmt.Errorf("empty fingerprint for %s", key)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	now := s.now()
	pin := Pin{Host: host, Port: port, Fingerprint: fingerprint, FirstSeen: now, LastSeen: now}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	if m, ok := s.mismatches[key]; ok && m.fingerprint == fingerprint {
		pin.NotAfter = m.notAfter
	}
	s.mu.RUnlock()

	if err := s.backend.SavePin(ctx, pin); err != nil {
		return fmt.Errorf("failed to save pin for %s: %w", key, err)
	}

	s.mu.Lock()
	s.pins[key] = pin
	delete(s.mismatches, key)
	delete(s.dirty, key)
	s.mu.Unlock()

	s.logger.Info("certificate repinned", "host", host, "port", port, "fingerprint", fingerprint)
	return nil
}

// TrustForSession trusts fingerprint for host and port without touching the
// pin. The trust is kept in memory for ttl, or until the process exits when
// ttl is zero.
func (s *Store) TrustForSession(host string, port int, fingerprint string, ttl time.Duration) {
	key := pinKey(strings.ToLower(host), port)
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.session.Set(key, strings.ToLower(fingerprint), ttl)
	s.logger.Info("certificate trusted for session", "host", host, "port", port, "ttl", ttl)
}

// Forget removes the pin and any session trust for host and port.
func (s *Store) Forget(ctx context.Context, host string, port int) error {
	host = strings.ToLower(host)
	key := pinKey(host, port)

	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	if err := s.backend.DeletePin(ctx, host, port); err != nil {
		return fmt.Errorf("failed to delete pin for %s: %w", key, err)
	}

	s.mu.Lock()
	delete(s.pins, key)
	delete(s.mismatches, key)
	delete(s.dirty, key)
	s.mu.Unlock()
	s.session.Delete(key)
	return nil
}

// State returns the trust state of host and port.
func (s *Store) State(host string, port int) State {
	key := pinKey(strings.ToLower(host), port)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.mismatches[key]; ok {
		return StateMismatched
	}
	pin, ok := s.pins[key]
	if !ok || s.expired(pin, s.now()) {
		return StateUnknown
	}
	return StatePinned
}

// Pin returns the pin for host and port.
func (s *Store) Pin(host string, port int) (Pin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pins[pinKey(strings.ToLower(host), port)]
	return p, ok
}

// Pins returns all pins sorted by host and port.
func (s *Store) Pins() []Pin {
	s.mu.RLock()
	pins := make([]Pin, 0, len(s.pins))
	for _, p := range s.pins {
		pins = append(pins, p)
	}
	s.mu.RUnlock()

	sort.Slice(pins, func(i, j int) bool {
		if pins[i].Host != pins[j].Host {
			return pins[i].Host < pins[j].Host
		}
		return pins[i].Port < pins[j].Port
	})
	return pins
}

func pinKey(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
