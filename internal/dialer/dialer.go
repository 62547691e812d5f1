package dialer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultConnectTimeout bounds a single connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// checkProxyTimeout is the timeout for the SOCKS5 greeting in CheckProxy.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 greeting constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// Dialer opens TCP connections directly or through a SOCKS5 proxy.
type Dialer struct {
	// proxyAddress is the SOCKS5 proxy in "host:port" form, empty for direct.
	proxyAddress string

	// timeout bounds each connection attempt.
	timeout time.Duration

	// dialer performs the connection; it is a *net.Dialer or a SOCKS5
	// dialer forwarding through one.
	dialer proxy.Dialer
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithProxy routes every connection through the SOCKS5 proxy at address.
// An empty address means direct connections.
func WithProxy(address string) Option {
	return func(d *Dialer) {
		d.proxyAddress = address
	}
}

// WithConnectTimeout sets the per-attempt connect timeout.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.timeout = timeout
	}
}

// New creates a Dialer. It validates the proxy address but does not
// contact the proxy; call CheckProxy for that.
func New(opts ...Option) (*Dialer, error) {
	d := &Dialer{timeout: DefaultConnectTimeout}
	for _, opt := range opts {
		opt(d)
	}
	if d.timeout <= 0 {
		d.timeout = DefaultConnectTimeout
	}

	direct := &net.Dialer{Timeout: d.timeout}
	if d.proxyAddress == "" {
		d.dialer = direct
		return d, nil
	}

	if !isValidProxyAddress(d.proxyAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, d.proxyAddress)
	}
	// No auth: local SOCKS ports such as Tor's do not require it.
	socks, err := proxy.SOCKS5("tcp", d.proxyAddress, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	d.dialer = socks
	return d, nil
}

// isValidProxyAddress checks that address is "host:port" with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy address, empty for direct.
func (d *Dialer) ProxyAddress() string {
	return d.proxyAddress
}

// Timeout returns the connect timeout.
func (d *Dialer) Timeout() time.Duration {
	return d.timeout
}

// DialContext connects to address, giving up when ctx is done or the
// connect timeout elapses.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if host, _, err := net.SplitHostPort(address); err == nil && IsOnionHost(host) {
		if d.proxyAddress == "" {
			return nil, fmt.Errorf("%w: %s", ErrOnionWithoutProxy, host)
		}
		if err := ValidateOnionHost(host); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if cd, ok := d.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	// proxy.Dialer has no context support; dial in a goroutine and drop
	// the connection if the context wins the race.
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := d.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if result := <-resultCh; result.conn != nil {
				_ = result.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// CheckProxy verifies that the configured proxy speaks SOCKS5 without
// authentication. It returns ProxyStatusOK when no proxy is configured.
func (d *Dialer) CheckProxy(ctx context.Context) ProxyStatus {
	if d.proxyAddress == "" {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Client greeting: version, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
