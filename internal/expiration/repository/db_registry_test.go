package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	expirationdomain "github.com/smallbiznis/quotaledger/internal/expiration/domain"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "expiration.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&expirationdomain.ExpirationRecord{}))
	return conn
}

func TestDBRegistryRoundTrip(t *testing.T) {
	registry := NewDBRegistry(setupDB(t), nil, nil)
	ctx := context.Background()

	_, err := registry.Get(ctx, "projA")
	assert.ErrorIs(t, err, quotadomain.ErrNotFound)

	require.NoError(t, registry.Set(ctx, "projA", "2024-01-01"))
	require.NoError(t, registry.Set(ctx, "projA", "2024-02-01"))
	require.NoError(t, registry.Set(ctx, "projB", "2024-06-30"))

	date, err := registry.Get(ctx, "projA")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", date)

	all, err := registry.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"projA": "2024-02-01", "projB": "2024-06-30"}, all)

	assert.ErrorIs(t, registry.Set(ctx, "projA", "2024-02-30"), quotadomain.ErrInvalidDate)
}

func TestDBRegistryConcurrentDisjointSets(t *testing.T) {
	registry := NewDBRegistry(setupDB(t), nil, nil)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			return registry.Set(ctx, fmt.Sprintf("proj%d", i), "2024-03-01")
		})
	}
	require.NoError(t, g.Wait())

	all, err := registry.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}
