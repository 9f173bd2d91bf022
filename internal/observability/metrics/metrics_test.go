package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("kind", "image_count"),
		attribute.String("project_id", "projA"),
		attribute.String("outcome", "denied"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("kind"))
	assert.Contains(t, keys, attribute.Key("outcome"))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordAdmission(context.Background(), "image_count", "admitted")
	m.RecordQuotaUpdate(context.Background(), "image_count", "database", "ok")
	m.RecordExpirationUpdate(context.Background(), "ok")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordAdmission(context.Background(), "image_count", "admitted")
}
