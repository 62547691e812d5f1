package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// ContextDialer opens connections. *dialer.Dialer and *net.Dialer both
// satisfy it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// WatchContext closes conn as soon as ctx is done, unblocking any pending
// read or write. The returned stop function ends the watch; it must be
// called once the exchange is over.
func WatchContext(ctx context.Context, conn net.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// IdleReader reads from a connection, renewing the read deadline before
// every Read so that a stalled peer times out while a slow but steady one
// does not.
type IdleReader struct {
	conn    net.Conn
	timeout time.Duration
}

// NewIdleReader returns an IdleReader. A zero timeout disables deadlines.
func NewIdleReader(conn net.Conn, timeout time.Duration) *IdleReader {
	return &IdleReader{conn: conn, timeout: timeout}
}

// Read implements io.Reader.
func (r *IdleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	return r.conn.Read(p)
}

// ReadLimited reads r to EOF. It fails with a *ProtocolError when more
// than limit bytes arrive. A non-positive limit means no limit.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, NewProtocolError("body exceeds %d bytes", limit)
	}
	return body, nil
}

// Exchange sends request on a fresh plain TCP connection to addr and
// reads the reply until the server closes the connection. It is the whole
// transaction of line-based protocols such as Gopher and Finger.
func Exchange(ctx context.Context, d ContextDialer, addr, request string, readTimeout time.Duration, limit int64) ([]byte, error) {
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, WrapTransportError(ctx, "dial", addr, err)
	}
	defer conn.Close()

	stop := WatchContext(ctx, conn)
	defer stop()

	if readTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(readTimeout)); err != nil {
			return nil, WrapTransportError(ctx, "write", addr, err)
		}
	}
	if _, err := io.WriteString(conn, request); err != nil {
		return nil, WrapTransportError(ctx, "write", addr, err)
	}

	body, err := ReadLimited(NewIdleReader(conn, readTimeout), limit)
	if err != nil {
		return nil, WrapTransportError(ctx, "read", addr, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapTransportError(ctx, "read", addr, err)
	}
	return body, nil
}

// WrapTransportError wraps err as a *TransportError. When ctx is done its
// error replaces err, so a cancelled fetch reports context.Canceled rather
// than the "use of closed connection" caused by WatchContext. Protocol
// errors pass through unchanged.
func WrapTransportError(ctx context.Context, op, addr string, err error) error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}
