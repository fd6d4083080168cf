// Package client implements a thin TCP client for bitcaskd's wire
// protocol: one request in flight per connection, matching the
// request/response framing in internal/protocol.
package client
