package lock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quotaledger/internal/config"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(
		NewRedisClient,
		NewLocker,
	),
)

type Params struct {
	fx.In

	Config  config.Config
	Client  *redis.Client `optional:"true"`
	Log     *zap.Logger
	Metrics *obsmetrics.BackendMetrics `optional:"true"`
}

// NewRedisClient returns nil when Redis is disabled.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewLocker always serializes in-process and adds the Redis lock when a
// client is configured.
func NewLocker(p Params) Locker {
	lockers := []Locker{NewLocalLocker()}
	if p.Client != nil {
		lockers = append(lockers, NewRedisLocker(p.Client, p.Config.Redis.LockTTL, p.Log))
		p.Log.Named("lock").Info("distributed lock enabled", zap.String("addr", p.Config.Redis.Addr))
	}
	return Chain(p.Metrics, lockers...)
}
