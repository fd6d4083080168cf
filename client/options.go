package client

type config struct {
	host string
	port int
}

func defaultConfig() config {
	return config{host: "127.0.0.1", port: 7070}
}

// Option configures Connect.
type Option func(*config)

// WithHost sets the daemon host to dial. Default "127.0.0.1".
func WithHost(host string) Option {
	return func(c *config) { c.host = host }
}

// WithPort sets the daemon port to dial. Default 7070.
func WithPort(port int) Option {
	return func(c *config) { c.port = port }
}
