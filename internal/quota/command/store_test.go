package command

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls   []call
	results map[string]Result
	errs    map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	op := ""
	for _, a := range args {
		if len(a) > 6 && a[:6] == "quota-" {
			op = a
			break
		}
	}
	return f.results[op], f.errs[op]
}

func newTestStore(t *testing.T, cfg Config, runner Runner) *Store {
	t.Helper()
	store, err := NewStore(cfg, runner, nil, nil)
	require.NoError(t, err)
	return store
}

func TestGetLimitParsesStdout(t *testing.T) {
	runner := &fakeRunner{results: map[string]Result{
		"quota-image-get": {Stdout: []byte(" 25\n")},
	}}
	store := newTestStore(t, Config{Path: "/opt/novac/bin/novac"}, runner)

	limit, found, err := store.GetLimit(context.Background(), "projA", quotadomain.KindImageCount)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(25), limit)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "/opt/novac/bin/novac", runner.calls[0].name)
	assert.Equal(t, []string{"quota-image-get", "projA"}, runner.calls[0].args)
}

func TestGetLimitEmptyOutputMeansNoRecord(t *testing.T) {
	runner := &fakeRunner{results: map[string]Result{"quota-image-get": {Stdout: []byte("\n")}}}
	store := newTestStore(t, Config{Path: "novac"}, runner)

	_, found, err := store.GetLimit(context.Background(), "projA", quotadomain.KindImageCount)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetLimitRejectsGarbage(t *testing.T) {
	runner := &fakeRunner{results: map[string]Result{"quota-image-get": {Stdout: []byte("unlimited")}}}
	store := newTestStore(t, Config{Path: "novac"}, runner)

	_, _, err := store.GetLimit(context.Background(), "projA", quotadomain.KindImageCount)
	assert.ErrorIs(t, err, quotadomain.ErrBackendUnavailable)
}

func TestSetLimitUsesSudoArgumentVector(t *testing.T) {
	runner := &fakeRunner{results: map[string]Result{
		"quota-object-storage-get": {Stdout: []byte("100")},
	}}
	store := newTestStore(t, Config{Path: "/opt/novac/bin/novac", UseSudo: true, ReadPrevious: true}, runner)

	change, err := store.SetLimit(context.Background(), "projA", quotadomain.KindObjectStorageMB, 2048)
	require.NoError(t, err)
	require.NotNil(t, change.Previous)
	assert.Equal(t, int64(100), *change.Previous)
	assert.Equal(t, BackendName, change.Backend)

	require.Len(t, runner.calls, 2)
	set := runner.calls[1]
	assert.Equal(t, "sudo", set.name)
	assert.Equal(t, []string{"-n", "--", "/opt/novac/bin/novac", "quota-object-storage-set", "projA", "2048"}, set.args)
}

func TestSetLimitWithoutPreviousReadRunsOnce(t *testing.T) {
	runner := &fakeRunner{results: map[string]Result{
		"quota-image-get": {Stdout: []byte("5")},
	}}
	store := newTestStore(t, Config{Path: "novac"}, runner)

	change, err := store.SetLimit(context.Background(), "projA", quotadomain.KindImageCount, 9)
	require.NoError(t, err)
	assert.Nil(t, change.Previous)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"quota-image-set", "projA", "9"}, runner.calls[0].args)
}

func TestSetLimitRejectsNegativeWithoutRunning(t *testing.T) {
	runner := &fakeRunner{}
	store := newTestStore(t, Config{Path: "novac"}, runner)

	_, err := store.SetLimit(context.Background(), "projA", quotadomain.KindImageCount, -1)
	assert.ErrorIs(t, err, quotadomain.ErrInvalidArgument)
	assert.Empty(t, runner.calls)
}

func TestHostileProjectIDNeverReachesRunner(t *testing.T) {
	runner := &fakeRunner{}
	store := newTestStore(t, Config{Path: "novac"}, runner)

	for _, id := range []string{"x; rm -rf /", "--help", "$(id)", "a b"} {
		_, _, err := store.GetLimit(context.Background(), id, quotadomain.KindImageCount)
		assert.ErrorIs(t, err, quotadomain.ErrInvalidProject, id)
	}
	assert.Empty(t, runner.calls)
}

func TestClassifyFailures(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		err  error
		want error
	}{
		{
			name: "sudo refused",
			res:  Result{Stderr: []byte("sudo: a password is required"), ExitCode: 1},
			err:  errors.New("exit status 1"),
			want: quotadomain.ErrPermissionDenied,
		},
		{
			name: "not executable",
			res:  Result{ExitCode: 126},
			err:  errors.New("exit status 126"),
			want: quotadomain.ErrPermissionDenied,
		},
		{
			name: "missing binary",
			err:  exec.ErrNotFound,
			want: quotadomain.ErrBackendUnavailable,
		},
		{
			name: "tool error",
			res:  Result{Stderr: []byte("connection refused"), ExitCode: 2},
			err:  errors.New("exit status 2"),
			want: quotadomain.ErrBackendUnavailable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(context.Background(), tc.res, tc.err)
			assert.ErrorIs(t, got, tc.want)
		})
	}
}

func TestClassifyTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := classify(ctx, Result{}, errors.New("signal: killed"))
	assert.ErrorIs(t, err, quotadomain.ErrBackendUnavailable)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "novac")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExecRunnerEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	ok := writeScript(t, `[ "$1" = "quota-image-get" ] && [ "$2" = "projA" ] && echo 7`)
	store := newTestStore(t, Config{Path: ok, Timeout: 5 * time.Second}, ExecRunner{})
	limit, found, err := store.GetLimit(context.Background(), "projA", quotadomain.KindImageCount)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), limit)

	failing := writeScript(t, `echo "service down" >&2; exit 3`)
	store = newTestStore(t, Config{Path: failing, Timeout: 5 * time.Second}, ExecRunner{})
	_, _, err = store.GetLimit(context.Background(), "projA", quotadomain.KindImageCount)
	assert.ErrorIs(t, err, quotadomain.ErrBackendUnavailable)

	store = newTestStore(t, Config{Path: filepath.Join(t.TempDir(), "missing")}, ExecRunner{})
	_, _, err = store.GetLimit(context.Background(), "projA", quotadomain.KindImageCount)
	assert.ErrorIs(t, err, quotadomain.ErrBackendUnavailable)
}
