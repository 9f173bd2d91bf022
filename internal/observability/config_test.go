package observability

import (
	"testing"

	"github.com/smallbiznis/quotaledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigFromApplicationConfig(t *testing.T) {
	cfg := NewConfig(config.Config{
		AppVersion:  " 1.2.0 ",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:      "warn",
			LogFormat:     "json",
			OtelEnabled:   true,
			OtelEndpoint:  "collector:4317",
			OtelProtocol:  "grpc",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "quotaledger", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestConfigDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "local"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}
