package resilientcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// Error type constants carried by CacheError.Type.
const (
	// ErrorTypeUnavailable marks connectivity faults: the server could not be
	// reached or the connection dropped mid-command.
	ErrorTypeUnavailable = "Unavailable"
	// ErrorTypeTimeout marks a command or connect attempt that exceeded its
	// budget. Timeouts are unavailable-class.
	ErrorTypeTimeout = "Timeout"
	// ErrorTypeValidation marks caller misuse: bad key, bad TTL, non-finite
	// number. Always surfaced regardless of error mode.
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrNotConnected is returned when a command arrives with no connection
	// and automatic connection is disabled.
	ErrNotConnected = errors.New("resilientcache: not connected")

	// ErrCooldownActive is returned when a command arrives before the
	// cooldown window has elapsed.
	ErrCooldownActive = errors.New("resilientcache: cooldown active")

	// ErrConnectInFlight is returned when a command arrives while a connect
	// or reconnect attempt is already in progress.
	ErrConnectInFlight = errors.New("resilientcache: connect in flight")
)

// CacheError is the typed fault surfaced by the client. Connectivity faults
// carry Type Unavailable or Timeout; caller bugs carry Type Validation.
type CacheError struct {
	Type      string
	Op        string
	Message   string
	Cause     error
	Timeout   time.Duration
	Timestamp time.Time
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s [op=%s]", msg, e.Op)
	}
	if e.Type == ErrorTypeTimeout && e.Timeout > 0 {
		msg = fmt.Sprintf("%s (after %v)", msg, e.Timeout)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CacheError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *CacheError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*CacheError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

func newUnavailableError(op string, cause error) *CacheError {
	return &CacheError{
		Type:      ErrorTypeUnavailable,
		Op:        op,
		Message:   "cache unavailable",
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func newTimeoutError(op string, budget time.Duration) *CacheError {
	return &CacheError{
		Type:      ErrorTypeTimeout,
		Op:        op,
		Message:   "operation timed out",
		Cause:     context.DeadlineExceeded,
		Timeout:   budget,
		Timestamp: time.Now(),
	}
}

func newValidationError(op, message string) *CacheError {
	return &CacheError{
		Type:      ErrorTypeValidation,
		Op:        op,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsUnavailable reports whether err is a connectivity fault, including
// timeouts.
func IsUnavailable(err error) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Type == ErrorTypeUnavailable || ce.Type == ErrorTypeTimeout
	}
	return false
}

// IsTimeout reports whether err is specifically a timeout fault.
func IsTimeout(err error) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Type == ErrorTypeTimeout
	}
	return false
}

// IsValidation reports whether err signals caller misuse rather than cache
// trouble.
func IsValidation(err error) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Type == ErrorTypeValidation
	}
	return false
}

// connectionErrorFragments match driver error strings that indicate the
// transport is gone rather than the data being wrong.
var connectionErrorFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"no route to host",
	"network is unreachable",
	"connection pool timeout",
	"client is closed",
	"connection is closed",
	"use of closed network connection",
	"EOF",
}

// isConnectionError classifies a driver error as connection-class. Semantic
// driver errors (wrong type for operation, script errors) are not
// connection-class and never feed the state machine.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := err.Error()
	for _, fragment := range connectionErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
