package resilientcache

import (
	"sync"
	"time"
)

// gateDecision tells the command pipeline what to do before touching the
// network.
type gateDecision int

const (
	// gateProceed: connection is live, execute the command.
	gateProceed gateDecision = iota
	// gateConnect: no live connection, but an attempt may be made now.
	gateConnect
	// gateReject: fail fast without any I/O.
	gateReject
)

// connection owns the client's connection lifecycle: the single source of
// truth for state, failure bookkeeping, the cooldown window, and observer
// notification. There are no background timers; every transition is driven
// by a command or an explicit connect/disconnect call.
type connection struct {
	mu                sync.Mutex
	state             ConnectionState
	lastError         error
	lastConnectedAt   time.Time
	lastSuccessAt     time.Time
	lastFailedAt      time.Time
	reconnectAttempts int
	cooldownEndsAt    time.Time

	cooldown    time.Duration
	maxAttempts int // 0 means unbounded

	// now is injectable for tests.
	now func() time.Time

	stateHandlers []StateChangeHandler
	errorHandlers []ErrorHandler
}

func newConnection(cooldown time.Duration, maxAttempts int) *connection {
	return &connection{
		state:       StateDisconnected,
		cooldown:    cooldown,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Status returns a point-in-time snapshot.
func (c *connection) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *connection) statusLocked() ConnectionStatus {
	return ConnectionStatus{
		State:             c.state,
		LastError:         c.lastError,
		LastConnectedAt:   c.lastConnectedAt,
		LastSuccessAt:     c.lastSuccessAt,
		LastFailedAt:      c.lastFailedAt,
		ReconnectAttempts: c.reconnectAttempts,
		CooldownEndsAt:    c.cooldownEndsAt,
	}
}

func (c *connection) onStateChange(handler StateChangeHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.stateHandlers = append(c.stateHandlers, handler)
	c.mu.Unlock()
}

func (c *connection) onError(handler ErrorHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.errorHandlers = append(c.errorHandlers, handler)
	c.mu.Unlock()
}

// transitionLocked moves to a new state and schedules observer dispatch.
// Invariant: cooldownEndsAt is non-zero if and only if state is cooldown.
// Returns the notification to run after the lock is released.
func (c *connection) transitionLocked(to ConnectionState) func() {
	c.state = to
	if to != StateCooldown {
		c.cooldownEndsAt = time.Time{}
	}
	status := c.statusLocked()
	handlers := make([]StateChangeHandler, len(c.stateHandlers))
	copy(handlers, c.stateHandlers)
	return func() {
		for _, h := range handlers {
			dispatchStateChange(h, status)
		}
	}
}

// dispatchStateChange invokes one observer, swallowing panics so a
// misbehaving observer cannot break command execution.
func dispatchStateChange(h StateChangeHandler, status ConnectionStatus) {
	defer func() { _ = recover() }()
	h(status)
}

func (c *connection) notifyError(err error) {
	c.mu.Lock()
	handlers := make([]ErrorHandler, len(c.errorHandlers))
	copy(handlers, c.errorHandlers)
	c.mu.Unlock()
	for _, h := range handlers {
		dispatchError(h, err)
	}
}

func dispatchError(h ErrorHandler, err error) {
	defer func() { _ = recover() }()
	h(err)
}

// gate decides, without any I/O, whether a command may execute now, may
// trigger a connect attempt, or must fail fast. The returned error is only
// meaningful for gateReject.
func (c *connection) gate(autoConnect bool) (gateDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnected:
		return gateProceed, nil
	case StateConnecting, StateReconnecting:
		// An attempt is already in flight; commands fail fast instead of
		// queueing behind it.
		return gateReject, ErrConnectInFlight
	case StateCooldown:
		if c.now().Before(c.cooldownEndsAt) {
			return gateReject, ErrCooldownActive
		}
		if !autoConnect {
			return gateReject, ErrNotConnected
		}
		return gateConnect, nil
	case StateDisconnected:
		if !autoConnect {
			return gateReject, ErrNotConnected
		}
		return gateConnect, nil
	case StateFailed:
		if !autoConnect {
			return gateReject, ErrNotConnected
		}
		// A fresh command resets the budget and retries.
		return gateConnect, nil
	default:
		return gateReject, ErrNotConnected
	}
}

// beginAttempt marks a connect attempt as starting and reports whether the
// caller should actually dial. When the machine is already connected the
// attempt is a no-op; when an attempt is already marked (the singleflight
// owner did it) the caller proceeds without a second transition.
func (c *connection) beginAttempt() (dial bool) {
	c.mu.Lock()
	var notify func()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return false
	case StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return true
	case StateDisconnected:
		notify = c.transitionLocked(StateConnecting)
	case StateFailed:
		c.reconnectAttempts = 0
		notify = c.transitionLocked(StateReconnecting)
	case StateCooldown:
		notify = c.transitionLocked(StateReconnecting)
	default:
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	notify()
	return true
}

// attemptSucceeded records a successful connect.
func (c *connection) attemptSucceeded() {
	c.mu.Lock()
	c.reconnectAttempts = 0
	c.lastError = nil
	c.lastConnectedAt = c.now()
	notify := c.transitionLocked(StateConnected)
	c.mu.Unlock()
	notify()
}

// attemptFailed records a failed connect attempt: the counter moves exactly
// once, and the machine enters cooldown, or failed when the budget is spent.
func (c *connection) attemptFailed(err error) {
	c.mu.Lock()
	c.reconnectAttempts++
	notify := c.failLocked(err)
	c.mu.Unlock()
	notify()
	c.notifyError(err)
}

// commandFailed records a connection-class error observed mid-command while
// connected. The attempt counter is untouched: no connect attempt happened.
func (c *connection) commandFailed(err error) {
	c.mu.Lock()
	notify := c.failLocked(err)
	c.mu.Unlock()
	notify()
	c.notifyError(err)
}

func (c *connection) failLocked(err error) func() {
	c.lastError = err
	c.lastFailedAt = c.now()
	if c.maxAttempts > 0 && c.reconnectAttempts >= c.maxAttempts {
		return c.transitionLocked(StateFailed)
	}
	c.cooldownEndsAt = c.now().Add(c.cooldown)
	return c.transitionLocked(StateCooldown)
}

// commandSucceeded records a successful round trip.
func (c *connection) commandSucceeded() {
	c.mu.Lock()
	c.lastSuccessAt = c.now()
	c.mu.Unlock()
}

// disconnected records an explicit disconnect from any state.
func (c *connection) disconnected() {
	c.mu.Lock()
	notify := c.transitionLocked(StateDisconnected)
	c.mu.Unlock()
	notify()
}

func (c *connection) currentState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
