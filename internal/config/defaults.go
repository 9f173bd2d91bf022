package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultLimitsKey = "quota.defaults"

// DefaultLimitsHolder serves the per-kind default limits from quota.yml and
// swaps them in place when the file changes.
type DefaultLimitsHolder struct {
	current atomic.Value // holds quotadomain.DefaultLimitMap
	log     *zap.Logger
}

func NewDefaultLimitsHolder(log *zap.Logger) (*DefaultLimitsHolder, error) {
	v := viper.New()

	v.SetConfigName("quota")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/quotaledger/config") // Volume-mounted config
	v.AddConfigPath("/etc/quotaledger")            // System config
	v.AddConfigPath(".")                           // Current directory (dev mode)

	v.SetEnvPrefix("QUOTALEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newDefaultLimitsHolder(v, log, true)
}

func newDefaultLimitsHolder(v *viper.Viper, log *zap.Logger, watch bool) (*DefaultLimitsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	holder := &DefaultLimitsHolder{log: log.Named("config.defaults")}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	limits, err := decodeDefaultLimits(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(limits)

	if found && watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			holder.reload(v, e.Name)
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *DefaultLimitsHolder) reload(v *viper.Viper, source string) {
	updated, err := decodeDefaultLimits(v)
	if err != nil {
		h.log.Warn("invalid default limits ignored", zap.String("file", source), zap.Error(err))
		return
	}
	h.current.Store(updated)
	h.log.Info("default limits reloaded", zap.String("file", source))
}

// Get returns the current overrides. Kinds missing from the map use the
// built-in default.
func (h *DefaultLimitsHolder) Get() quotadomain.DefaultLimitMap {
	return h.current.Load().(quotadomain.DefaultLimitMap)
}

func (h *DefaultLimitsHolder) DefaultLimit(kind quotadomain.ResourceKind) int64 {
	return h.Get().DefaultLimit(kind)
}

func decodeDefaultLimits(v *viper.Viper) (quotadomain.DefaultLimitMap, error) {
	raw := map[string]int64{}
	if v.IsSet(defaultLimitsKey) {
		if err := v.UnmarshalKey(defaultLimitsKey, &raw); err != nil {
			return nil, err
		}
	}

	limits := make(quotadomain.DefaultLimitMap, len(raw))
	for name, limit := range raw {
		kind, err := quotadomain.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("%s: unknown resource kind %q", defaultLimitsKey, name)
		}
		if limit < 0 {
			return nil, fmt.Errorf("%s.%s cannot be negative", defaultLimitsKey, name)
		}
		limits[kind] = limit
	}
	return limits, nil
}

var _ quotadomain.DefaultLimits = (*DefaultLimitsHolder)(nil)
