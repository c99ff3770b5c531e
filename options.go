package resilientcache

import (
	"fmt"
	"time"
)

// WithHost sets the cache server host.
func WithHost(host string) Option {
	return func(c *Client) {
		c.host = host
	}
}

// WithPort sets the cache server port.
func WithPort(port int) Option {
	return func(c *Client) {
		c.port = port
	}
}

// WithCredential sets the server password.
func WithCredential(credential string) Option {
	return func(c *Client) {
		c.credential = credential
	}
}

// WithDatabase selects the logical database index.
func WithDatabase(db int) Option {
	return func(c *Client) {
		c.database = db
	}
}

// WithConnectTimeout bounds how long a connect attempt may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithCommandTimeout bounds how long any single command may take.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.commandTimeout = d
	}
}

// WithReconnectCooldown sets the circuit-open window after a connectivity
// failure. Commands arriving inside the window are rejected without I/O.
func WithReconnectCooldown(d time.Duration) Option {
	return func(c *Client) {
		c.reconnectCooldown = d
	}
}

// WithMaxReconnectAttempts bounds the reconnect budget. Zero means
// unbounded. Once the budget is spent the client parks in the failed state
// until a new command resets the counter.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) {
		c.maxReconnectAttempts = n
	}
}

// WithQueueWhileDisconnected delegates offline command buffering to the
// underlying driver. The client itself never queues commands across a
// disconnection.
func WithQueueWhileDisconnected(enabled bool) Option {
	return func(c *Client) {
		c.queueWhileOffline = enabled
	}
}

// WithDefaultErrorMode sets the client-wide graceful/throw policy. Per-call
// options override it for a single invocation.
func WithDefaultErrorMode(mode ErrorMode) Option {
	return func(c *Client) {
		c.defaultMode = mode
	}
}

// WithAutoConnect controls whether a command arriving with no connection may
// trigger a connect attempt. When disabled, commands short-circuit until
// Connect is called explicitly.
func WithAutoConnect(enabled bool) Option {
	return func(c *Client) {
		c.autoConnect = enabled
	}
}

// WithScanBatchSize bounds how many keys a prefix-delete fetches per round
// trip.
func WithScanBatchSize(n int64) Option {
	return func(c *Client) {
		c.scanBatchSize = n
	}
}

// WithDriver substitutes the underlying driver. Intended for tests and for
// callers that need a preconfigured connection.
func WithDriver(driver Driver) Option {
	return func(c *Client) {
		c.driver = driver
	}
}

// WithLogger sets a structured logger for client diagnostics.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.host == "" {
		problems = append(problems, "host must not be empty")
	}
	if c.port <= 0 || c.port > 65535 {
		problems = append(problems, "port must be between 1 and 65535")
	}
	if c.connectTimeout <= 0 {
		problems = append(problems, "connectTimeout must be positive")
	}
	if c.commandTimeout <= 0 {
		problems = append(problems, "commandTimeout must be positive")
	}
	if c.reconnectCooldown <= 0 {
		problems = append(problems, "reconnectCooldown must be positive")
	}
	if c.maxReconnectAttempts < 0 {
		problems = append(problems, "maxReconnectAttempts must be non-negative (0 means unbounded)")
	}
	if c.scanBatchSize <= 0 {
		problems = append(problems, "scanBatchSize must be positive")
	}

	if len(problems) > 0 {
		return &CacheError{
			Type:    ErrorTypeValidation,
			Op:      "configure",
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}
