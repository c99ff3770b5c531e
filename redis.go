package resilientcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisDriverConfig struct {
	host         string
	port         int
	credential   string
	database     int
	dialTimeout  time.Duration
	offlineQueue bool
}

// redisDriver binds the Driver contract to go-redis. The handle is created
// on Connect and dropped on Disconnect; commands issued in between without a
// live handle fail with a connection-class error.
type redisDriver struct {
	mu     sync.Mutex
	cfg    redisDriverConfig
	client *redis.Client
}

func newRedisDriver(cfg redisDriverConfig) *redisDriver {
	return &redisDriver{cfg: cfg}
}

func (d *redisDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.client == nil {
		maxRetries := 3
		if !d.cfg.offlineQueue {
			// Fail fast: no driver-side retry buffering.
			maxRetries = -1
		}
		d.client = redis.NewClient(&redis.Options{
			Addr:        fmt.Sprintf("%s:%d", d.cfg.host, d.cfg.port),
			Password:    d.cfg.credential,
			DB:          d.cfg.database,
			DialTimeout: d.cfg.dialTimeout,
			MaxRetries:  maxRetries,
		})
	}
	client := d.client
	d.mu.Unlock()

	if err := client.Ping(ctx).Err(); err != nil {
		d.mu.Lock()
		if d.client == client {
			_ = client.Close()
			d.client = nil
		}
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *redisDriver) Disconnect(_ context.Context) error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// handle returns the live client or a connection-class error.
func (d *redisDriver) handle() (*redis.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil, redis.ErrClosed
	}
	return d.client, nil
}

func (d *redisDriver) Get(ctx context.Context, key string) (string, bool, error) {
	client, err := d.handle()
	if err != nil {
		return "", false, err
	}
	value, err := client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (d *redisDriver) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	client, err := d.handle()
	if err != nil {
		return err
	}
	return client.Set(ctx, key, value, ttl).Err()
}

func (d *redisDriver) Delete(ctx context.Context, keys ...string) (int64, error) {
	client, err := d.handle()
	if err != nil {
		return 0, err
	}
	return client.Del(ctx, keys...).Result()
}

func (d *redisDriver) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	client, err := d.handle()
	if err != nil {
		return nil, 0, err
	}
	return client.Scan(ctx, cursor, pattern, count).Result()
}

func (d *redisDriver) Flush(ctx context.Context) error {
	client, err := d.handle()
	if err != nil {
		return err
	}
	return client.FlushDB(ctx).Err()
}

func (d *redisDriver) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	client, err := d.handle()
	if err != nil {
		return 0, err
	}
	return client.IncrBy(ctx, key, delta).Result()
}

func (d *redisDriver) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	client, err := d.handle()
	if err != nil {
		return 0, err
	}
	return client.DecrBy(ctx, key, delta).Result()
}

func (d *redisDriver) EvalAtomic(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	client, err := d.handle()
	if err != nil {
		return nil, err
	}
	return redis.NewScript(script).Run(ctx, client, keys, args...).Result()
}

func (d *redisDriver) Exists(ctx context.Context, key string) (bool, error) {
	client, err := d.handle()
	if err != nil {
		return false, err
	}
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *redisDriver) TTL(ctx context.Context, key string) (int64, error) {
	client, err := d.handle()
	if err != nil {
		return -2, err
	}
	dur, err := client.TTL(ctx, key).Result()
	if err != nil {
		return -2, err
	}
	// go-redis surfaces the protocol's -1 ("no expiry") and -2 ("no key")
	// as raw negative durations.
	if dur < 0 {
		return int64(dur), nil
	}
	return int64(dur / time.Second), nil
}

func (d *redisDriver) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	client, err := d.handle()
	if err != nil {
		return false, err
	}
	return client.SetNX(ctx, key, value, ttl).Result()
}

func (d *redisDriver) MGet(ctx context.Context, keys ...string) ([]any, error) {
	client, err := d.handle()
	if err != nil {
		return nil, err
	}
	return client.MGet(ctx, keys...).Result()
}

func (d *redisDriver) MSet(ctx context.Context, pairs map[string]string, ttl time.Duration) error {
	client, err := d.handle()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		flat := make([]any, 0, len(pairs)*2)
		for key, value := range pairs {
			flat = append(flat, key, value)
		}
		return client.MSet(ctx, flat...).Err()
	}
	// MSET has no expiry form; per-key SETs ride one pipeline round trip.
	pipe := client.TxPipeline()
	for key, value := range pairs {
		pipe.Set(ctx, key, value, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (d *redisDriver) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	client, err := d.handle()
	if err != nil {
		return false, err
	}
	return client.Expire(ctx, key, ttl).Result()
}

func (d *redisDriver) Ping(ctx context.Context) error {
	client, err := d.handle()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}
