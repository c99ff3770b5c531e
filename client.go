package resilientcache

import (
	"context"
	"time"

	"github.com/able-wong/resilient-cache/internal/singleflight"
)

// Client is a resilient wrapper around a remote cache server. Every command
// runs through the same pipeline: validate inputs, consult the connection
// state machine, bound the round trip with a hard timeout, classify the
// outcome and apply the graceful/throw policy. Cache unavailability never
// blocks or crashes the caller. It is safe for concurrent use.
type Client struct {
	driver       Driver
	conn         *connection
	connectGroup *singleflight.Group

	host                 string
	port                 int
	credential           string
	database             int
	connectTimeout       time.Duration
	commandTimeout       time.Duration
	reconnectCooldown    time.Duration
	maxReconnectAttempts int
	queueWhileOffline    bool
	defaultMode          ErrorMode
	autoConnect          bool
	scanBatchSize        int64

	logger          Logger
	metrics         *MetricsCollector
	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		connectGroup:         singleflight.New(),
		host:                 "127.0.0.1",
		port:                 6379,
		connectTimeout:       5 * time.Second,
		commandTimeout:       2 * time.Second,
		reconnectCooldown:    30 * time.Second,
		maxReconnectAttempts: 5,
		defaultMode:          ModeGraceful,
		autoConnect:          true,
		scanBatchSize:        100,
		logger:               noopLogger{},
	}

	for _, option := range options {
		option(client)
	}

	client.conn = newConnection(client.reconnectCooldown, client.maxReconnectAttempts)

	if client.driver == nil {
		client.driver = newRedisDriver(redisDriverConfig{
			host:         client.host,
			port:         client.port,
			credential:   client.credential,
			database:     client.database,
			dialTimeout:  client.connectTimeout,
			offlineQueue: client.queueWhileOffline,
		})
	}

	client.conn.onStateChange(func(status ConnectionStatus) {
		client.metrics.RecordConnectionState(status.State)
		client.logger.Info("connection state changed",
			"state", status.State.String(),
			"reconnectAttempts", status.ReconnectAttempts)
	})

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Connect establishes the connection. Concurrent calls share a single
// underlying attempt and receive its outcome. Connecting while already
// connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	return c.connectGroup.Do("connect", func() error {
		if !c.conn.beginAttempt() {
			return nil
		}

		err := runWithTimeout(ctx, "connect", c.connectTimeout, c.driver.Connect)
		if err != nil {
			if !IsUnavailable(err) {
				err = newUnavailableError("connect", err)
			}
			c.conn.attemptFailed(err)
			c.metrics.RecordConnectAttempt("failure")
			c.logger.Warn("connect attempt failed", "error", err.Error())
			return err
		}

		c.conn.attemptSucceeded()
		c.metrics.RecordConnectAttempt("success")
		c.logger.Debug("connected", "host", c.host, "port", c.port)
		return nil
	})
}

// Disconnect tears the connection down from any state.
func (c *Client) Disconnect(ctx context.Context) error {
	err := c.driver.Disconnect(ctx)
	c.conn.disconnected()
	return err
}

// Status returns a point-in-time snapshot of the connection machinery.
func (c *Client) Status() ConnectionStatus {
	return c.conn.Status()
}

// OnStateChange registers an observer invoked after every accepted state
// transition. Panics inside the observer are swallowed.
func (c *Client) OnStateChange(handler StateChangeHandler) {
	c.conn.onStateChange(handler)
}

// OnError registers an observer invoked for every connectivity fault.
// Panics inside the observer are swallowed.
func (c *Client) OnError(handler ErrorHandler) {
	c.conn.onError(handler)
}

// mode resolves the effective error mode for one call.
func (c *Client) mode(opts []CallOption) ErrorMode {
	settings := callSettings{mode: c.defaultMode}
	for _, opt := range opts {
		opt(&settings)
	}
	return settings.mode
}

// suppress reports whether err should be swallowed in favor of the
// operation's sentinel value. Only unavailable-class faults are ever
// suppressed; validation and driver semantic faults always surface.
func (c *Client) suppress(err error, opts []CallOption) bool {
	return c.mode(opts) == ModeGraceful && IsUnavailable(err)
}

// exec is the shared command pipeline: gate the command on connection state
// (possibly triggering one shared connect attempt), bound the driver call
// with the command timeout, then classify and record the outcome. Validation
// happens before exec; the graceful/throw policy is applied by the caller.
func (c *Client) exec(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return c.execBudget(ctx, op, c.commandTimeout, fn)
}

// execBudget is exec with an explicit outer budget. Multi-round operations
// pass zero and bound each round trip themselves, so a long but healthy
// iteration is never mistaken for a dead server.
func (c *Client) execBudget(ctx context.Context, op string, budget time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()

	decision, gateErr := c.conn.gate(c.autoConnect)
	switch decision {
	case gateReject:
		c.metrics.RecordRejection(op, gateReason(gateErr))
		c.metrics.RecordCommand(op, "rejected", time.Since(start))
		c.logger.Debug("command rejected without I/O", "op", op, "reason", gateErr.Error())
		return newUnavailableError(op, gateErr)
	case gateConnect:
		if err := c.Connect(ctx); err != nil {
			c.metrics.RecordCommand(op, "rejected", time.Since(start))
			if IsUnavailable(err) {
				return err
			}
			return newUnavailableError(op, err)
		}
	}

	err := runWithTimeout(ctx, op, budget, fn)
	duration := time.Since(start)

	if err == nil {
		c.conn.commandSucceeded()
		c.metrics.RecordCommand(op, "success", duration)
		return nil
	}

	if IsTimeout(err) {
		c.conn.commandFailed(err)
		c.metrics.RecordError(op, ErrorTypeTimeout)
		c.metrics.RecordCommand(op, "timeout", duration)
		c.logger.Warn("command timed out", "op", op, "timeout", c.commandTimeout)
		return err
	}

	if isConnectionError(err) {
		wrapped := newUnavailableError(op, err)
		c.conn.commandFailed(wrapped)
		c.metrics.RecordError(op, ErrorTypeUnavailable)
		c.metrics.RecordCommand(op, "unavailable", duration)
		c.logger.Warn("connection-class command failure", "op", op, "error", err.Error())
		return wrapped
	}

	// Semantic driver fault: the server is reachable but the data does not
	// fit the operation. Connection state is untouched and the error
	// propagates unchanged in every mode.
	c.metrics.RecordCommand(op, "error", duration)
	return err
}

func gateReason(err error) string {
	switch err {
	case ErrCooldownActive:
		return "cooldown"
	case ErrConnectInFlight:
		return "connect_in_flight"
	case ErrNotConnected:
		return "not_connected"
	default:
		return "other"
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
