package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	ctx = WithRequestID(context.Background(), "  ")
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestProjectIDRoundTrip(t *testing.T) {
	ctx := WithProjectID(context.Background(), "projA")
	assert.Equal(t, "projA", ProjectIDFromContext(ctx))
	assert.Empty(t, ProjectIDFromContext(context.Background()))
}
