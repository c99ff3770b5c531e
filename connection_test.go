package resilientcache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestConnectionInitialState(t *testing.T) {
	conn := newConnection(30*time.Second, 5)

	status := conn.Status()
	if status.State != StateDisconnected {
		t.Errorf("Expected initial state=disconnected, got %v", status.State)
	}
	if status.ReconnectAttempts != 0 {
		t.Errorf("Expected 0 reconnect attempts, got %d", status.ReconnectAttempts)
	}
	if !status.CooldownEndsAt.IsZero() {
		t.Error("Expected zero cooldownEndsAt outside cooldown state")
	}
}

func TestConnectionSuccessfulAttempt(t *testing.T) {
	conn := newConnection(30*time.Second, 5)

	if dial := conn.beginAttempt(); !dial {
		t.Fatal("Expected beginAttempt to request a dial from disconnected")
	}
	if conn.currentState() != StateConnecting {
		t.Errorf("Expected state=connecting, got %v", conn.currentState())
	}

	conn.attemptSucceeded()

	status := conn.Status()
	if status.State != StateConnected {
		t.Errorf("Expected state=connected, got %v", status.State)
	}
	if status.LastConnectedAt.IsZero() {
		t.Error("Expected lastConnectedAt to be recorded")
	}
	if status.LastError != nil {
		t.Errorf("Expected lastError cleared, got %v", status.LastError)
	}
}

func TestConnectionFailedAttemptEntersCooldown(t *testing.T) {
	conn := newConnection(30*time.Second, 5)
	cause := errors.New("dial refused")

	conn.beginAttempt()
	conn.attemptFailed(cause)

	status := conn.Status()
	if status.State != StateCooldown {
		t.Errorf("Expected state=cooldown after first failure, got %v", status.State)
	}
	if status.ReconnectAttempts != 1 {
		t.Errorf("Expected 1 reconnect attempt, got %d", status.ReconnectAttempts)
	}
	if status.CooldownEndsAt.IsZero() {
		t.Error("Expected cooldownEndsAt set in cooldown state")
	}
	if status.LastError != cause {
		t.Errorf("Expected lastError=%v, got %v", cause, status.LastError)
	}
}

func TestConnectionAttemptsExhaustedParksInFailed(t *testing.T) {
	conn := newConnection(time.Millisecond, 2)
	conn.now = func() time.Time { return time.Unix(0, 0) }

	for i := 0; i < 2; i++ {
		conn.now = func() time.Time { return time.Unix(int64(i+10), 0) }
		conn.beginAttempt()
		conn.attemptFailed(errors.New("down"))
	}

	status := conn.Status()
	if status.State != StateFailed {
		t.Errorf("Expected state=failed after budget spent, got %v", status.State)
	}
	if !status.CooldownEndsAt.IsZero() {
		t.Error("Expected zero cooldownEndsAt in failed state")
	}
	if status.ReconnectAttempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", status.ReconnectAttempts)
	}

	// A fresh command resets the counter and retries.
	decision, _ := conn.gate(true)
	if decision != gateConnect {
		t.Errorf("Expected gateConnect from failed, got %v", decision)
	}
	conn.beginAttempt()
	if conn.currentState() != StateReconnecting {
		t.Errorf("Expected state=reconnecting, got %v", conn.currentState())
	}
	if got := conn.Status().ReconnectAttempts; got != 0 {
		t.Errorf("Expected attempts reset to 0, got %d", got)
	}
}

func TestConnectionAttemptsResetOnSuccess(t *testing.T) {
	conn := newConnection(time.Millisecond, 5)

	conn.beginAttempt()
	conn.attemptFailed(errors.New("down"))
	conn.now = func() time.Time { return time.Now().Add(time.Second) }
	conn.beginAttempt()
	conn.attemptSucceeded()

	status := conn.Status()
	if status.ReconnectAttempts != 0 {
		t.Errorf("Expected attempts reset on success, got %d", status.ReconnectAttempts)
	}
	if status.State != StateConnected {
		t.Errorf("Expected state=connected, got %v", status.State)
	}
}

func TestConnectionGateCooldownWindow(t *testing.T) {
	base := time.Unix(1000, 0)
	conn := newConnection(30*time.Second, 5)
	conn.now = func() time.Time { return base }

	conn.beginAttempt()
	conn.attemptFailed(errors.New("down"))

	// Inside the window: reject without I/O.
	decision, err := conn.gate(true)
	if decision != gateReject {
		t.Errorf("Expected gateReject inside cooldown window, got %v", decision)
	}
	if err != ErrCooldownActive {
		t.Errorf("Expected ErrCooldownActive, got %v", err)
	}

	// After the window: a connect attempt is permitted.
	conn.now = func() time.Time { return base.Add(31 * time.Second) }
	decision, _ = conn.gate(true)
	if decision != gateConnect {
		t.Errorf("Expected gateConnect after cooldown elapsed, got %v", decision)
	}
}

func TestConnectionGateDuringAttempt(t *testing.T) {
	conn := newConnection(time.Second, 5)
	conn.beginAttempt()

	decision, err := conn.gate(true)
	if decision != gateReject {
		t.Errorf("Expected gateReject while connecting, got %v", decision)
	}
	if err != ErrConnectInFlight {
		t.Errorf("Expected ErrConnectInFlight, got %v", err)
	}
}

func TestConnectionGateAutoConnectDisabled(t *testing.T) {
	conn := newConnection(time.Second, 5)

	decision, err := conn.gate(false)
	if decision != gateReject {
		t.Errorf("Expected gateReject with autoConnect disabled, got %v", decision)
	}
	if err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	decision, _ = conn.gate(true)
	if decision != gateConnect {
		t.Errorf("Expected gateConnect with autoConnect enabled, got %v", decision)
	}
}

func TestConnectionGateAutoConnectDisabledAfterFailure(t *testing.T) {
	base := time.Unix(2000, 0)

	// Cooldown elapsed: a reconnect still requires autoConnect.
	conn := newConnection(30*time.Second, 5)
	conn.now = func() time.Time { return base }
	conn.beginAttempt()
	conn.attemptFailed(errors.New("down"))
	conn.now = func() time.Time { return base.Add(time.Minute) }

	decision, err := conn.gate(false)
	if decision != gateReject || err != ErrNotConnected {
		t.Errorf("Expected gateReject/ErrNotConnected after cooldown with autoConnect disabled, got %v / %v", decision, err)
	}
	if decision, _ := conn.gate(true); decision != gateConnect {
		t.Errorf("Expected gateConnect with autoConnect enabled, got %v", decision)
	}

	// Failed state: same rule.
	conn = newConnection(time.Second, 1)
	conn.beginAttempt()
	conn.attemptFailed(errors.New("down"))
	if conn.currentState() != StateFailed {
		t.Fatalf("Expected failed, got %v", conn.currentState())
	}
	decision, err = conn.gate(false)
	if decision != gateReject || err != ErrNotConnected {
		t.Errorf("Expected gateReject/ErrNotConnected from failed with autoConnect disabled, got %v / %v", decision, err)
	}
}

func TestConnectionCommandFailureDoesNotCountAttempt(t *testing.T) {
	conn := newConnection(time.Second, 3)
	conn.beginAttempt()
	conn.attemptSucceeded()

	conn.commandFailed(errors.New("reset by peer"))

	status := conn.Status()
	if status.State != StateCooldown {
		t.Errorf("Expected state=cooldown after mid-command failure, got %v", status.State)
	}
	if status.ReconnectAttempts != 0 {
		t.Errorf("Expected attempts untouched by command failure, got %d", status.ReconnectAttempts)
	}
}

func TestConnectionExplicitDisconnectFromAnyState(t *testing.T) {
	states := []func(c *connection){
		func(c *connection) {},
		func(c *connection) { c.beginAttempt() },
		func(c *connection) { c.beginAttempt(); c.attemptSucceeded() },
		func(c *connection) { c.beginAttempt(); c.attemptFailed(errors.New("x")) },
	}
	for i, setup := range states {
		conn := newConnection(time.Second, 5)
		setup(conn)
		conn.disconnected()
		if conn.currentState() != StateDisconnected {
			t.Errorf("case %d: expected disconnected, got %v", i, conn.currentState())
		}
		if !conn.Status().CooldownEndsAt.IsZero() {
			t.Errorf("case %d: expected cooldownEndsAt cleared", i)
		}
	}
}

func TestConnectionObserversReceiveSnapshots(t *testing.T) {
	conn := newConnection(time.Second, 5)

	var mu sync.Mutex
	var seen []ConnectionState
	conn.onStateChange(func(status ConnectionStatus) {
		mu.Lock()
		seen = append(seen, status.State)
		mu.Unlock()
	})

	conn.beginAttempt()
	conn.attemptSucceeded()
	conn.commandFailed(errors.New("down"))

	mu.Lock()
	defer mu.Unlock()
	want := []ConnectionState{StateConnecting, StateConnected, StateCooldown}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d transitions, got %d (%v)", len(want), len(seen), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}

func TestConnectionObserverPanicIsSwallowed(t *testing.T) {
	conn := newConnection(time.Second, 5)
	conn.onStateChange(func(ConnectionStatus) {
		panic("misbehaving observer")
	})

	var after ConnectionState
	conn.onStateChange(func(status ConnectionStatus) {
		after = status.State
	})

	conn.beginAttempt()

	if after != StateConnecting {
		t.Errorf("Expected later observer to still run, got %v", after)
	}
}

func TestConnectionErrorObserverPanicIsSwallowed(t *testing.T) {
	conn := newConnection(time.Second, 5)
	conn.onError(func(error) { panic("boom") })

	fired := false
	conn.onError(func(error) { fired = true })

	conn.beginAttempt()
	conn.attemptFailed(errors.New("down"))

	if !fired {
		t.Error("Expected later error observer to still run")
	}
}

func TestConnectionStateStrings(t *testing.T) {
	cases := map[ConnectionState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateCooldown:     "cooldown",
		StateReconnecting: "reconnecting",
		StateFailed:       "failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
	if got := ConnectionState(99).String(); got != "unknown" {
		t.Errorf("Expected unknown, got %q", got)
	}
}
