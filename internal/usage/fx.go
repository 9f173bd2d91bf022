package usage

import (
	"github.com/smallbiznis/quotaledger/internal/config"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/smallbiznis/quotaledger/internal/usage/counter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("usage.counter",
	fx.Provide(NewCounter),
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.BackendMetrics `optional:"true"`
}

// NewCounter registers a counter for every kind whose backend endpoint is
// configured. Kinds left out fail with BackendUnavailable at count time.
func NewCounter(p Params) (quotadomain.UsageCounter, error) {
	cfg := p.Config.Backends
	client := counter.NewHTTPClient(cfg.Timeout)
	log := p.Log.Named("usage")
	registry := counter.NewRegistry()

	backendCfg := func(endpoint string) counter.BackendConfig {
		return counter.BackendConfig{
			Endpoint:  endpoint,
			AuthToken: cfg.AuthToken,
			PageSize:  cfg.PageSize,
			MaxPages:  cfg.MaxPages,
		}
	}

	if cfg.ImageEndpoint != "" {
		c, err := counter.NewImageCounter(backendCfg(cfg.ImageEndpoint), client, p.Log, p.Metrics)
		if err != nil {
			return nil, err
		}
		registry.Register(quotadomain.KindImageCount, c)
	} else {
		log.Warn("image catalog endpoint not configured", zap.String("kind", quotadomain.KindImageCount.String()))
	}

	if cfg.ObjectStoreEndpoint != "" {
		c, err := counter.NewObjectStoreCounter(backendCfg(cfg.ObjectStoreEndpoint), cfg.AccountPrefix, client, p.Log, p.Metrics)
		if err != nil {
			return nil, err
		}
		registry.Register(quotadomain.KindObjectStorageMB, c)
	} else {
		log.Warn("object store endpoint not configured", zap.String("kind", quotadomain.KindObjectStorageMB.String()))
	}

	if cfg.ComputeEndpoint != "" {
		c, err := counter.NewComputeCounter(backendCfg(cfg.ComputeEndpoint), client, p.Log, p.Metrics)
		if err != nil {
			return nil, err
		}
		registry.Register(quotadomain.KindInstanceCount, c)
	} else {
		log.Warn("compute endpoint not configured", zap.String("kind", quotadomain.KindInstanceCount.String()))
	}

	return registry, nil
}
