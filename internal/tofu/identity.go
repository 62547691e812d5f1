package tofu

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/bebop/internal/uri"
)

// DefaultIdentityValidity is used by GenerateIdentity when no validity is given.
const DefaultIdentityValidity = 365 * 24 * time.Hour

// Identity is a client certificate presented to one host and port for
// every path under PathScope.
type Identity struct {
	// ID is a UUID assigned when the identity is added.
	ID string

	// Name is a human-readable label, also used as the certificate CN.
	Name string

	Host string
	Port int

	// PathScope is an absolute path without trailing slash, or "/".
	PathScope string

	CertificatePEM []byte
	KeyPEM         []byte

	// Expires is the certificate NotAfter. The zero value means never.
	Expires time.Time
}

// Expired reports whether the identity has expired at now.
func (id Identity) Expired(now time.Time) bool {
	return !id.Expires.IsZero() && now.After(id.Expires)
}

// Covers reports whether path lies within the identity scope. Matching is
// done on whole segments: "/path" covers "/path" and "/path/sub" but not
// "/pathology".
func (id Identity) Covers(path string) bool {
	scope := normalizeScope(id.PathScope)
	if scope == "/" {
		return true
	}
	if path == "" {
		path = "/"
	}
	return path == scope || strings.HasPrefix(path, scope+"/")
}

// TLSCertificate returns the identity as a certificate usable by crypto/tls.
func (id Identity) TLSCertificate() (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(id.CertificatePEM, id.KeyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %s: %v", ErrInvalidIdentity, id.Name, err)
	}
	return cert, nil
}

// Fingerprint returns the hex SHA-256 digest of the identity certificate,
// or an empty string if the PEM cannot be decoded.
func (id Identity) Fingerprint() string {
	block, _ := pem.Decode(id.CertificatePEM)
	if block == nil {
		return ""
	}
	sum := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(sum[:])
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "/"
	}
	if !strings.HasPrefix(scope, "/") {
		scope = "/" + scope
	}
	if len(scope) > 1 {
		scope = strings.TrimRight(scope, "/")
		if scope == "" {
			scope = "/"
		}
	}
	return scope
}

// GenerateIdentity creates a self-signed ECDSA P-256 client certificate
// for host, port and scope. The returned identity has no ID until it is
// added to a Store.
func GenerateIdentity(name, host string, port int, scope string, validity time.Duration) (*Identity, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("%w: name and host are required", ErrInvalidIdentity)
	}
	if validity <= 0 {
		validity = DefaultIdentityValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	if port == 0 {
		port = uri.GeminiDefaultPort
	}

	return &Identity{
		Name:           name,
		Host:           strings.ToLower(host),
		Port:           port,
		PathScope:      normalizeScope(scope),
		CertificatePEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:         pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		Expires:        template.NotAfter,
	}, nil
}

// AddIdentity validates and stores id, assigning an ID if it has none.
// It returns the identity as stored.
func (s *Store) AddIdentity(ctx context.Context, id Identity) (Identity, error) {
	if strings.TrimSpace(id.Host) == "" {
		return Identity{}, fmt.Errorf("%w: host is required", ErrInvalidIdentity)
	}
	if _, err := id.TLSCertificate(); err != nil {
		return Identity{}, err
	}
	if id.ID == "" {
		id.ID = uuid.NewString()
	}
	if id.Port == 0 {
		id.Port = uri.GeminiDefaultPort
	}
	id.Host = strings.ToLower(id.Host)
	id.PathScope = normalizeScope(id.PathScope)

	unlock := s.locks.Lock(pinKey(id.Host, id.Port))
	defer unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return Identity{}, ErrStoreClosed
	}

	if err := s.backend.SaveIdentity(ctx, id); err != nil {
		return Identity{}, fmt.Errorf("failed to save identity %s: %w", id.Name, err)
	}

	s.mu.Lock()
	s.identities[id.ID] = id
	s.mu.Unlock()

	s.logger.Info("identity added", "name", id.Name, "host", id.Host, "port", id.Port, "scope", id.PathScope)
	return id, nil
}

// RemoveIdentity deletes the identity with the given ID.
func (s *Store) RemoveIdentity(ctx context.Context, id string) error {
	s.mu.RLock()
	existing, ok := s.identities[id]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrIdentityNotFound, id)
	}

	unlock := s.locks.Lock(pinKey(existing.Host, existing.Port))
	defer unlock()

	if err := s.backend.DeleteIdentity(ctx, id); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.identities, id)
	s.mu.Unlock()
	return nil
}

// Identities returns all identities sorted by host, port and scope.
func (s *Store) Identities() []Identity {
	s.mu.RLock()
	out := make([]Identity, 0, len(s.identities))
	for _, id := range s.identities {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		if a.Port != b.Port {
			return a.Port < b.Port
		}
		if a.PathScope != b.PathScope {
			return a.PathScope < b.PathScope
		}
		return a.ID < b.ID
	})
	return out
}

// IdentityFor returns the unexpired identity with the longest scope
// covering u, if any.
func (s *Store) IdentityFor(u *uri.URL) (Identity, bool) {
	host := strings.ToLower(u.Host)
	port := u.EffectivePort()
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best Identity
	found := false
	for _, id := range s.identities {
		if id.Host != host || id.Port != port || id.Expired(now) || !id.Covers(u.Path) {
			continue
		}
		n, bestN := len(normalizeScope(id.PathScope)), len(normalizeScope(best.PathScope))
		if !found || n > bestN || (n == bestN && id.ID < best.ID) {
			best = id
			found = true
		}
	}
	return best, found
}
