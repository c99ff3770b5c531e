package resilientcache

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config carries the externally supplied settings the fx module turns into
// a Cache. The zero value of optional fields falls back to client defaults.
type Config struct {
	// Memory selects the in-memory variant instead of a networked client.
	Memory bool

	Host       string
	Port       int
	Credential string
	Database   int

	ConnectTimeout       time.Duration
	CommandTimeout       time.Duration
	ReconnectCooldown    time.Duration
	MaxReconnectAttempts int

	QueueWhileDisconnected bool
	ThrowOnError           bool
	DisableAutoConnect     bool
	EnableMetrics          bool
}

// NewCache builds a Cache from Config. Consumers that do not use fx can call
// it directly and pass the result around as an explicit dependency.
func NewCache(config Config, log *zap.Logger) (Cache, error) {
	if config.Memory {
		mode := ModeGraceful
		if config.ThrowOnError {
			mode = ModeThrow
		}
		return NewMemoryCache(WithMemoryDefaultErrorMode(mode)), nil
	}

	options := []Option{WithLogger(NewZapLogger(log))}
	if config.Host != "" {
		options = append(options, WithHost(config.Host))
	}
	if config.Port != 0 {
		options = append(options, WithPort(config.Port))
	}
	if config.Credential != "" {
		options = append(options, WithCredential(config.Credential))
	}
	if config.Database != 0 {
		options = append(options, WithDatabase(config.Database))
	}
	if config.ConnectTimeout > 0 {
		options = append(options, WithConnectTimeout(config.ConnectTimeout))
	}
	if config.CommandTimeout > 0 {
		options = append(options, WithCommandTimeout(config.CommandTimeout))
	}
	if config.ReconnectCooldown > 0 {
		options = append(options, WithReconnectCooldown(config.ReconnectCooldown))
	}
	if config.MaxReconnectAttempts > 0 {
		options = append(options, WithMaxReconnectAttempts(config.MaxReconnectAttempts))
	}
	if config.QueueWhileDisconnected {
		options = append(options, WithQueueWhileDisconnected(true))
	}
	if config.ThrowOnError {
		options = append(options, WithDefaultErrorMode(ModeThrow))
	}
	if config.DisableAutoConnect {
		options = append(options, WithAutoConnect(false))
	}
	if config.EnableMetrics {
		options = append(options, WithMetrics())
	}

	client := New(options...)
	if err := client.ValidationError(); err != nil {
		return nil, err
	}
	return client, nil
}

// Module wires a Cache into an fx application. The connection is established
// eagerly on start (best effort: a dead cache server must not block boot)
// and torn down on stop.
func Module() fx.Option {
	return fx.Module(
		"resilientcache",
		fx.Decorate(func(log *zap.Logger) *zap.Logger {
			return log.Named("resilientcache")
		}),
		fx.Provide(NewCache),
		fx.Invoke(func(lc fx.Lifecycle, cache Cache, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := cache.Connect(ctx); err != nil {
						log.Warn("cache connect failed at startup; commands will retry per cooldown policy",
							zap.Error(err))
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return cache.Disconnect(ctx)
				},
			})
		}),
	)
}
