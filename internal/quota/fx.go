package quota

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaledger/internal/clock"
	"github.com/smallbiznis/quotaledger/internal/config"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	"github.com/smallbiznis/quotaledger/internal/quota/command"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/smallbiznis/quotaledger/internal/quota/repository"
	"github.com/smallbiznis/quotaledger/internal/quota/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("quota.service",
	fx.Provide(
		NewLimitStore,
		NewChangeLedger,
		provideDefaultLimits,
		service.NewService,
	),
)

type StoreParams struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.BackendMetrics `optional:"true"`
}

// NewLimitStore keeps limits in the database unless QUOTA_COMMAND_KINDS
// hands a kind to the quota tool.
func NewLimitStore(p StoreParams) (quotadomain.LimitStore, error) {
	dbStore := repository.NewLimitStore(p.DB, p.Clock, p.Metrics)
	if len(p.Config.Command.Kinds) == 0 {
		return dbStore, nil
	}

	cmdCfg := p.Config.Command
	store, err := command.NewStore(command.Config{
		Path:     cmdCfg.Path,
		UseSudo:  cmdCfg.UseSudo,
		SudoPath: cmdCfg.SudoPath,
		Timeout:  cmdCfg.Timeout,

		ReadPrevious: cmdCfg.ReadPrevious,
	}, command.ExecRunner{}, p.Log, p.Metrics)
	if err != nil {
		return nil, fmt.Errorf("quota command store: %w", err)
	}

	routes := make(map[quotadomain.ResourceKind]quotadomain.LimitStore, len(cmdCfg.Kinds))
	for _, raw := range cmdCfg.Kinds {
		kind, err := quotadomain.ParseKind(raw)
		if err != nil {
			return nil, fmt.Errorf("QUOTA_COMMAND_KINDS: %q: %w", raw, err)
		}
		routes[kind] = store
	}
	p.Log.Named("quota").Info("quota tool owns limits",
		zap.Strings("kinds", cmdCfg.Kinds),
		zap.String("path", cmdCfg.Path),
		zap.Bool("sudo", cmdCfg.UseSudo),
	)
	return repository.NewRoutedStore(dbStore, routes), nil
}

func NewChangeLedger(conn *gorm.DB, node *snowflake.Node, clk clock.Clock) quotadomain.ChangeLedger {
	return repository.NewChangeLedger(conn, node, clk)
}

func provideDefaultLimits(holder *config.DefaultLimitsHolder) quotadomain.DefaultLimits {
	return holder
}
