package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallbiznis/quotaledger/internal/lock"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newFileRegistry(t *testing.T, content string) (*FileRegistry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expiration_dates")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	registry, err := NewFileRegistry(path, lock.NewLocalLocker(), nil, nil)
	require.NoError(t, err)
	return registry, path
}

func TestFileRegistryGet(t *testing.T) {
	registry, _ := newFileRegistry(t, "projA:2024-01-01\nprojB:2024-06-30\n")
	ctx := context.Background()

	date, err := registry.Get(ctx, "projA")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", date)

	_, err = registry.Get(ctx, "projC")
	assert.ErrorIs(t, err, quotadomain.ErrNotFound)
}

func TestFileRegistryMissingFileIsEmpty(t *testing.T) {
	registry, _ := newFileRegistry(t, "")

	all, err := registry.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = registry.Get(context.Background(), "projA")
	assert.ErrorIs(t, err, quotadomain.ErrNotFound)
}

func TestFileRegistrySkipsMalformedLines(t *testing.T) {
	registry, _ := newFileRegistry(t, "projA:2024-01-01\n\ngarbage\n:2024-02-02\nprojB:\nprojA:2025-01-01\r\n")

	all, err := registry.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"projA": "2025-01-01"}, all)
}

func TestFileRegistrySetPreservesOtherRecords(t *testing.T) {
	registry, path := newFileRegistry(t, "projA:2024-01-01\nprojB:2024-06-30\n")
	ctx := context.Background()

	require.NoError(t, registry.Set(ctx, "projB", "2025-12-31"))
	require.NoError(t, registry.Set(ctx, "projC", "2026-01-15"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "projA:2024-01-01\nprojB:2025-12-31\nprojC:2026-01-15\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileRegistrySetValidates(t *testing.T) {
	registry, path := newFileRegistry(t, "")
	ctx := context.Background()

	assert.ErrorIs(t, registry.Set(ctx, "proj:A", "2024-01-01"), quotadomain.ErrInvalidProject)
	assert.ErrorIs(t, registry.Set(ctx, "projA", "01/01/2024"), quotadomain.ErrInvalidDate)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileRegistryConcurrentDisjointSets(t *testing.T) {
	registry, _ := newFileRegistry(t, "")
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			return registry.Set(ctx, fmt.Sprintf("proj%02d", i), fmt.Sprintf("2024-01-%02d", i+1))
		})
	}
	require.NoError(t, g.Wait())

	all, err := registry.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 20)
	for i := 0; i < 20; i++ {
		assert.Equal(t, fmt.Sprintf("2024-01-%02d", i+1), all[fmt.Sprintf("proj%02d", i)])
	}
}

func TestFileRegistryConcurrentSameKey(t *testing.T) {
	registry, path := newFileRegistry(t, "other:2023-05-05\n")
	ctx := context.Background()

	dates := []string{"2024-01-01", "2024-12-31"}
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		date := dates[i%2]
		g.Go(func() error { return registry.Set(ctx, "projA", date) })
	}
	require.NoError(t, g.Wait())

	got, err := registry.Get(ctx, "projA")
	require.NoError(t, err)
	assert.Contains(t, dates, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines, "other:2023-05-05")
}

func TestFileRegistrySharedAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expiration_dates")
	locker := lock.NewLocalLocker()
	a, err := NewFileRegistry(path, locker, nil, nil)
	require.NoError(t, err)
	b, err := NewFileRegistry(path, locker, nil, nil)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error { return a.Set(context.Background(), "projA", "2024-01-01") })
	g.Go(func() error { return b.Set(context.Background(), "projB", "2024-06-30") })
	require.NoError(t, g.Wait())

	all, err := a.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"projA": "2024-01-01", "projB": "2024-06-30"}, all)
}

func TestFormatLinesSorted(t *testing.T) {
	out := formatLines(expirationFile{records: map[string]string{"b": "2024-01-02", "a": "2024-01-01"}})
	assert.Equal(t, "a:2024-01-01\nb:2024-01-02\n", string(out))
}

func TestFileRegistrySetKeepsUnparsedLines(t *testing.T) {
	registry, path := newFileRegistry(t, "projA:2024-01-01\nlegacy entry\n# note: reviewed by ops\n")
	ctx := context.Background()

	all, err := registry.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"projA": "2024-01-01"}, all)

	require.NoError(t, registry.Set(ctx, "projB", "2024-06-30"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "legacy entry\n# note: reviewed by ops\nprojA:2024-01-01\nprojB:2024-06-30\n", string(data))

	require.NoError(t, registry.Set(ctx, "projA", "2025-01-01"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "legacy entry\n# note: reviewed by ops\nprojA:2025-01-01\nprojB:2024-06-30\n", string(data))
}
