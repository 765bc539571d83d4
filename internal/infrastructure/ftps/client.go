// Package ftps transfers files to printers over implicit-TLS FTP.
//
// Printers expose their SD card on port 990 with implicit TLS and the same
// access code used for MQTT. Each operation opens its own control
// connection, logs in, performs one command and quits:
//
//	client := ftps.New(cfg.FTPS)
//	_ = client.Delete(ctx, target, "job.gcode") // may fail if absent
//	err := client.Store(ctx, target, "job.gcode", file)
package ftps

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/infrastructure/tlsutil"
)

// defaultTimeout is used when the config does not set one.
const defaultTimeout = 60 * time.Second

// Errors returned by Client operations. Use errors.Is to check them.
var (
	ErrDialFailed   = errors.New("ftps: dial failed")
	ErrLoginFailed  = errors.New("ftps: login failed")
	ErrDeleteFailed = errors.New("ftps: delete failed")
	ErrStoreFailed  = errors.New("ftps: store failed")
	ErrInvalidPath  = errors.New("ftps: remote path cannot be empty")
)

// Target identifies one printer's file-transfer endpoint.
type Target struct {
	Host       string
	ServerName string
	Password   string
}

// Client performs file operations against printers.
//
// Thread Safety: Client holds no connection state and is safe for
// concurrent use; each call uses its own connection.
type Client struct {
	cfg config.FTPSConfig
}

// New creates a Client from configuration.
func New(cfg config.FTPSConfig) *Client {
	return &Client{cfg: cfg}
}

// Delete removes path on the printer.
func (c *Client) Delete(ctx context.Context, target Target, path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	return c.withConn(ctx, target, func(conn *ftp.ServerConn) error {
		if err := conn.Delete(path); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDeleteFailed, path, err)
		}
		return nil
	})
}

// Store uploads r to path on the printer, replacing any existing file.
func (c *Client) Store(ctx context.Context, target Target, path string, r io.Reader) error {
	if path == "" {
		return ErrInvalidPath
	}
	return c.withConn(ctx, target, func(conn *ftp.ServerConn) error {
		if err := conn.Stor(path, r); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStoreFailed, path, err)
		}
		return nil
	})
}

// withConn dials, logs in, runs fn and always quits.
//
// ServerConn is not safe for concurrent use, so cancellation never calls
// into it: the underlying sockets are closed instead and the command in
// flight fails.
func (c *Client) withConn(ctx context.Context, target Target, fn func(*ftp.ServerConn) error) error {
	tlsConfig, err := tlsutil.LoadClientTLSConfig(c.cfg.TLS, target.ServerName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	// Printers require the data channel to resume the control channel's
	// TLS session.
	tlsConfig.ClientSessionCache = tls.NewLRUClientSessionCache(4)

	conns := &connTracker{
		ctx:       ctx,
		dialer:    net.Dialer{Timeout: c.timeout()},
		tlsConfig: tlsConfig,
	}
	stop := context.AfterFunc(ctx, conns.closeAll)
	defer stop()

	conn, err := ftp.Dial(address(target.Host, c.cfg.Port),
		ftp.DialWithTimeout(c.timeout()),
		ftp.DialWithTLS(tlsConfig),
		ftp.DialWithDialFunc(conns.dial),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDialFailed, target.Host, abortCause(ctx, err))
	}
	defer conn.Quit() //nolint:errcheck // best-effort goodbye

	if err := conn.Login(c.username(), target.Password); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, abortCause(ctx, err))
	}

	if err := fn(conn); err != nil {
		return abortCause(ctx, err)
	}
	return nil
}

// abortCause attaches ctx's error when the failure came from cancellation.
func abortCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", err, ctxErr)
	}
	return err
}

// connTracker dials the control and data connections, wrapping each in
// implicit TLS, and remembers the raw sockets so they can be closed from
// another goroutine.
type connTracker struct {
	ctx       context.Context
	dialer    net.Dialer
	tlsConfig *tls.Config

	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

func (t *connTracker) dial(network, addr string) (net.Conn, error) {
	raw, err := t.dialer.DialContext(t.ctx, network, addr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = raw.Close()
		return nil, net.ErrClosed
	}
	t.conns = append(t.conns, raw)
	return tls.Client(raw, t.tlsConfig), nil
}

// closeAll closes every socket dialled so far and refuses new ones.
func (t *connTracker) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, c := range t.conns {
		_ = c.Close()
	}
	t.conns = nil
}

func (c *Client) timeout() time.Duration {
	if c.cfg.Timeout > 0 {
		return time.Duration(c.cfg.Timeout) * time.Second
	}
	return defaultTimeout
}

func (c *Client) username() string {
	if c.cfg.Username != "" {
		return c.cfg.Username
	}
	return "bblp"
}

// address formats host:port, bracketing IPv6 literals.
func address(host string, port int) string {
	if port == 0 {
		port = 990
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
