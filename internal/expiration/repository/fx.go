package repository

import (
	"github.com/smallbiznis/quotaledger/internal/clock"
	"github.com/smallbiznis/quotaledger/internal/config"
	expirationdomain "github.com/smallbiznis/quotaledger/internal/expiration/domain"
	"github.com/smallbiznis/quotaledger/internal/lock"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("expiration.repository",
	fx.Provide(NewRegistry),
)

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Locker  lock.Locker
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.BackendMetrics `optional:"true"`
}

// NewRegistry selects the configured expiration backend.
func NewRegistry(p Params) (expirationdomain.Registry, error) {
	log := p.Log.Named("expiration")
	if p.Config.Expiration.Backend == config.ExpirationBackendDatabase {
		log.Info("expiration registry backend", zap.String("backend", BackendDatabase))
		return NewDBRegistry(p.DB, p.Clock, p.Metrics), nil
	}
	log.Info("expiration registry backend",
		zap.String("backend", BackendFile),
		zap.String("path", p.Config.Expiration.FilePath),
	)
	return NewFileRegistry(p.Config.Expiration.FilePath, p.Locker, p.Log, p.Metrics)
}
