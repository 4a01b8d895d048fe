package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

var noDeadline time.Time

// Dialer opens a connection to the daemon socket.
type Dialer func(ctx context.Context, socketPath string) (net.Conn, error)

func dialUnix(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", socketPath)
}

// Client talks to the daemon over one long lived connection. The
// connection is created on first use and dropped as soon as it breaks; the
// next call dials again. Requests are serialized.
type Client struct {
	socketPath string
	dial       Dialer

	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader
}

// NewClient returns a disconnected Client for socketPath.
func NewClient(socketPath string) *Client {
	return NewClientWithDialer(socketPath, dialUnix)
}

// NewClientWithDialer is NewClient with a custom dialer.
func NewClientWithDialer(socketPath string, dial Dialer) *Client {
	return &Client{
		socketPath: socketPath,
		dial:       dial,
	}
}

// Connected reports whether a connection is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Invalidate drops the current connection, if any.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

// Close drops the connection. The client stays usable.
func (c *Client) Close() error {
	c.Invalidate()
	return nil
}

func (c *Client) ensureConnectedLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx, c.socketPath)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
			return ErrDaemonNotRunning
		case errors.Is(err, os.ErrPermission):
			return ErrPermissionDenied
		}
		logrus.Errorf("failed to connect to unix socket: %v", err)
		return pkgerrors.Wrapf(err, "failed to connect to %s", c.socketPath)
	}

	logrus.WithField("unix", c.socketPath).Debug("connected to daemon")
	c.conn = conn
	c.br = bufio.NewReader(conn)
	return nil
}

func (c *Client) invalidateLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		logrus.WithError(err).Trace("failed to close daemon connection")
	}
	c.conn = nil
	c.br = nil
}

// Send performs one request and returns the response body of a 2xx reply.
// Any transport failure drops the connection and yields ErrConnectionLost.
func (c *Client) Send(ctx context.Context, method string, path string, body []byte) ([]byte, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   string(body),
		"unix":   c.socketPath,
	}).Debug("sending request")

	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer func() {
			if c.conn != nil {
				_ = c.conn.SetDeadline(noDeadline)
			}
		}()
	}

	if err := req.Write(c.conn); err != nil {
		c.invalidateLocked()
		return nil, pkgerrors.Wrapf(ErrConnectionLost, "failed to send request: %v", err)
	}

	resp, err := http.ReadResponse(c.br, req)
	if err != nil {
		c.invalidateLocked()
		return nil, pkgerrors.Wrapf(ErrConnectionLost, "failed to read response: %v", err)
	}
	b, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		c.invalidateLocked()
		return nil, pkgerrors.Wrapf(ErrConnectionLost, "failed to read response body: %v", err)
	}
	if resp.Close {
		c.invalidateLocked()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, b)
	}

	return b, nil
}

func decodeError(status int, body []byte) error {
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Kind != "" {
		if sentinel := er.Kind.Err(); sentinel != nil {
			return pkgerrors.Wrap(sentinel, er.Error)
		}
		return pkgerrors.Errorf("daemon error (%d): %s", status, er.Error)
	}

	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrPermissionDenied
	}
	return pkgerrors.Errorf("got %d: %s", status, string(body))
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Send(ctx, http.MethodGet, path, nil)
}

// Put sends a PUT request with v encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to encode request")
	}
	return c.Send(ctx, http.MethodPut, path, b)
}

// Post sends a POST request with an empty body.
func (c *Client) Post(ctx context.Context, path string) ([]byte, error) {
	return c.Send(ctx, http.MethodPost, path, nil)
}
