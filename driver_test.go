package resilientcache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeDriver is a deterministic Driver for pipeline tests. Every operation
// can be failed wholesale via failWith, and call counts are recorded per
// operation so tests can assert that no I/O happened.
type fakeDriver struct {
	mu         sync.Mutex
	store      map[string]string
	ttls       map[string]time.Duration
	calls      map[string]int
	connectErr error
	failErr    error
	connectGap time.Duration
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		store: make(map[string]string),
		ttls:  make(map[string]time.Duration),
		calls: make(map[string]int),
	}
}

func (d *fakeDriver) record(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[op]++
	return d.failErr
}

func (d *fakeDriver) callCount(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

func (d *fakeDriver) failWith(err error) {
	d.mu.Lock()
	d.failErr = err
	d.mu.Unlock()
}

func (d *fakeDriver) Connect(_ context.Context) error {
	d.mu.Lock()
	d.calls["connect"]++
	err := d.connectErr
	gap := d.connectGap
	d.mu.Unlock()
	if gap > 0 {
		time.Sleep(gap)
	}
	return err
}

func (d *fakeDriver) Disconnect(_ context.Context) error {
	return d.record("disconnect")
}

func (d *fakeDriver) Get(_ context.Context, key string) (string, bool, error) {
	if err := d.record("get"); err != nil {
		return "", false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok := d.store[key]
	return value, ok, nil
}

func (d *fakeDriver) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if err := d.record("set"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.store[key] = value
	d.ttls[key] = ttl
	return nil
}

func (d *fakeDriver) Delete(_ context.Context, keys ...string) (int64, error) {
	if err := d.record("delete"); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := d.store[key]; ok {
			delete(d.store, key)
			n++
		}
	}
	return n, nil
}

// Scan pages over live matches: the first count keys in sorted order, with a
// nonzero cursor while more remain. The caller deletes what it receives, so
// restarting from the front each round still makes progress and terminates.
func (d *fakeDriver) Scan(_ context.Context, _ uint64, pattern string, count int64) ([]string, uint64, error) {
	if err := d.record("scan"); err != nil {
		return nil, 0, err
	}
	prefix := strings.TrimSuffix(pattern, "*")
	d.mu.Lock()
	var matched []string
	for key := range d.store {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	d.mu.Unlock()

	sortStrings(matched)
	if int64(len(matched)) <= count {
		return matched, 0, nil
	}
	return matched[:count], uint64(count), nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (d *fakeDriver) Flush(_ context.Context) error {
	if err := d.record("flush"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.store = make(map[string]string)
	d.ttls = make(map[string]time.Duration)
	return nil
}

func (d *fakeDriver) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	if err := d.record("incrby"); err != nil {
		return 0, err
	}
	return d.applyDelta(key, delta)
}

func (d *fakeDriver) DecrBy(_ context.Context, key string, delta int64) (int64, error) {
	if err := d.record("decrby"); err != nil {
		return 0, err
	}
	return d.applyDelta(key, -delta)
}

func (d *fakeDriver) applyDelta(key string, delta int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	current := int64(0)
	if raw, ok := d.store[key]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
		current = n
	}
	current += delta
	d.store[key] = strconv.FormatInt(current, 10)
	return current, nil
}

func (d *fakeDriver) EvalAtomic(_ context.Context, _ string, keys []string, args ...any) (any, error) {
	if err := d.record("eval"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := keys[0]
	if raw, ok := d.store[key]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errNotInteger
		}
		n--
		d.store[key] = strconv.FormatInt(n, 10)
		return n, nil
	}
	initial := toInt64(args[0])
	ttl := toInt64(args[1])
	d.store[key] = strconv.FormatInt(initial, 10)
	d.ttls[key] = time.Duration(ttl) * time.Second
	return initial, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func (d *fakeDriver) Exists(_ context.Context, key string) (bool, error) {
	if err := d.record("exists"); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.store[key]
	return ok, nil
}

func (d *fakeDriver) TTL(_ context.Context, key string) (int64, error) {
	if err := d.record("ttl"); err != nil {
		return -2, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.store[key]; !ok {
		return -2, nil
	}
	ttl := d.ttls[key]
	if ttl <= 0 {
		return -1, nil
	}
	return int64(ttl / time.Second), nil
}

func (d *fakeDriver) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := d.record("setnx"); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.store[key]; ok {
		return false, nil
	}
	d.store[key] = value
	d.ttls[key] = ttl
	return true, nil
}

func (d *fakeDriver) MGet(_ context.Context, keys ...string) ([]any, error) {
	if err := d.record("mget"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	values := make([]any, len(keys))
	for i, key := range keys {
		if raw, ok := d.store[key]; ok {
			values[i] = raw
		}
	}
	return values, nil
}

func (d *fakeDriver) MSet(_ context.Context, pairs map[string]string, ttl time.Duration) error {
	if err := d.record("mset"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, value := range pairs {
		d.store[key] = value
		d.ttls[key] = ttl
	}
	return nil
}

func (d *fakeDriver) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := d.record("expire"); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.store[key]; !ok {
		return false, nil
	}
	d.ttls[key] = ttl
	return true, nil
}

func (d *fakeDriver) Ping(_ context.Context) error {
	return d.record("ping")
}

func (d *fakeDriver) totalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for op, n := range d.calls {
		if op == "connect" {
			continue
		}
		total += n
	}
	return total
}

// newTestClient wires a client to a fake driver with short timeouts.
func newTestClient(driver Driver, options ...Option) *Client {
	base := []Option{
		WithDriver(driver),
		WithConnectTimeout(200 * time.Millisecond),
		WithCommandTimeout(200 * time.Millisecond),
		WithReconnectCooldown(50 * time.Millisecond),
	}
	return New(append(base, options...)...)
}
