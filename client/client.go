package client

import (
	"fmt"
	"net"

	"github.com/kvforge/bitcask/internal/protocol"
)

// Client is a connection to a running bitcaskd daemon. It is not safe for
// concurrent use by multiple goroutines; the wire protocol is one
// request-response pair at a time per connection.
type Client struct {
	conn net.Conn
}

// Connect dials a bitcaskd daemon.
func Connect(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	addr := net.JoinHostPort(cfg.host, fmt.Sprintf("%d", cfg.port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping checks the daemon is responsive.
func (c *Client) Ping() (string, error) {
	return c.Execute("PING", "", "")
}

// Get fetches a key's value.
func (c *Client) Get(key string) (string, error) {
	return c.Execute("GET", key, "")
}

// Set writes a key's value.
func (c *Client) Set(key, value string) (string, error) {
	return c.Execute("SET", key, value)
}

// Delete removes a key.
func (c *Client) Delete(key string) (string, error) {
	return c.Execute("DELETE", key, "")
}

// Exists reports whether a key is present.
func (c *Client) Exists(key string) (string, error) {
	return c.Execute("EXISTS", key, "")
}

// Count returns the number of live keys.
func (c *Client) Count() (string, error) {
	return c.Execute("COUNT", "", "")
}

// List returns every live key.
func (c *Client) List() (string, error) {
	return c.Execute("LIST", "", "")
}

// Status returns a snapshot of store health.
func (c *Client) Status() (string, error) {
	return c.Execute("STATUS", "", "")
}

// Merge triggers a compaction pass.
func (c *Client) Merge() (string, error) {
	return c.Execute("MERGE", "", "")
}

// Execute sends an arbitrary command frame and returns the decoded
// response. Command names are case-insensitive on the daemon side.
func (c *Client) Execute(cmd, key, value string) (string, error) {
	payload, err := protocol.EncodeCommand(cmd, key, value)
	if err != nil {
		return "", fmt.Errorf("client: encode %s: %w", cmd, err)
	}

	if _, err := c.conn.Write(payload); err != nil {
		return "", fmt.Errorf("client: send %s: %w", cmd, err)
	}

	resp, err := protocol.DecodeResponse(c.conn)
	if err != nil {
		return "", fmt.Errorf("client: read response to %s: %w", cmd, err)
	}

	return resp, nil
}
