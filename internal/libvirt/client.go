package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

// DefaultSocket is the dom0 libvirt daemon socket.
const DefaultSocket = "/var/run/libvirt/libvirt-sock"

// domainAPI is the subset of *libvirt.Libvirt the Client uses.
// In production, this is satisfied by *libvirt.Libvirt directly.
type domainAPI interface {
	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)
	ConnectGetLibVersion() (uint64, error)
	Disconnect() error
}

// Client wraps a go-libvirt connection to dom0's libvirt daemon and answers
// domain state queries for qubes.
type Client struct {
	libvirt domainAPI
}

// Connect establishes a connection to the local libvirt daemon.
// It returns a Client that must be closed via Close() when done.
//
// If socketPath is empty, defaults to DefaultSocket.
// If timeout is zero, defaults to 5 seconds.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l}, nil
}

// ConnectWithContext establishes a connection with context support for cancellation.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	if err := c.libvirt.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}
	c.libvirt = nil

	return nil
}

// Ping verifies the connection is still alive by calling a simple libvirt API.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// IsRunning reports whether the domain backing the named qube is active,
// matching qvm-check --running.
//
// Paused, suspended and shutting down domains are still active. A qube
// without a defined domain is not running. States that do not say whether
// the domain is active are returned as errors so callers can ask qvm-check.
func (c *Client) IsRunning(name string) (bool, error) {
	if c.libvirt == nil {
		return false, fmt.Errorf("client not connected")
	}

	dom, err := c.libvirt.DomainLookupByName(name)
	if err != nil {
		if libvirt.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}

	state, _, err := c.libvirt.DomainGetState(dom, 0)
	if err != nil {
		if libvirt.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get state of domain %s: %w", name, err)
	}

	switch libvirt.DomainState(state) {
	case libvirt.DomainRunning, libvirt.DomainBlocked, libvirt.DomainPaused,
		libvirt.DomainShutdown, libvirt.DomainPmsuspended:
		return true, nil
	case libvirt.DomainShutoff:
		return false, nil
	default:
		return false, fmt.Errorf("domain %s is in ambiguous state %d", name, state)
	}
}

