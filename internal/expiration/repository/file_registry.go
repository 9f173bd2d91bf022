package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	expirationdomain "github.com/smallbiznis/quotaledger/internal/expiration/domain"
	"github.com/smallbiznis/quotaledger/internal/lock"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"go.uber.org/zap"
)

const (
	BackendFile = "file"

	fileLockKey = "expiration_file"
)

// FileRegistry keeps expiration dates in a line-oriented text file. Writers
// take an exclusive section, re-read the file inside it and replace the
// file with a rename, so readers see either the old or the new content.
type FileRegistry struct {
	path    string
	locker  lock.Locker
	log     *zap.Logger
	metrics *obsmetrics.BackendMetrics
}

func NewFileRegistry(path string, locker lock.Locker, log *zap.Logger, metrics *obsmetrics.BackendMetrics) (*FileRegistry, error) {
	if path == "" {
		return nil, errors.New("expiration file path is required")
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileRegistry{
		path:    path,
		locker:  locker,
		log:     log.Named("expiration.file"),
		metrics: metrics,
	}, nil
}

func (r *FileRegistry) Get(ctx context.Context, projectID string) (date string, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendFile, "expiration_get", start, err) }()

	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return "", err
	}
	file, err := r.read()
	if err != nil {
		return "", err
	}
	date, ok := file.records[projectID]
	if !ok {
		return "", quotadomain.ErrNotFound
	}
	return date, nil
}

func (r *FileRegistry) GetAll(ctx context.Context) (records map[string]string, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendFile, "expiration_list", start, err) }()

	file, err := r.read()
	if err != nil {
		return nil, err
	}
	return file.records, nil
}

func (r *FileRegistry) Set(ctx context.Context, projectID, date string) (err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendFile, "expiration_set", start, err) }()

	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return err
	}
	date, err = quotadomain.NormalizeDate(date)
	if err != nil {
		return err
	}

	unlock, err := r.locker.Lock(ctx, fileLockKey)
	if err != nil {
		return fmt.Errorf("%w: expiration lock: %v", quotadomain.ErrBackendUnavailable, err)
	}
	defer unlock()

	file, err := r.read()
	if err != nil {
		return err
	}
	if current, ok := file.records[projectID]; ok && current == date {
		return nil
	}
	file.records[projectID] = date
	if len(file.unparsed) > 0 {
		r.log.Debug("keeping unparsed expiration lines", zap.String("path", r.path), zap.Int("lines", len(file.unparsed)))
	}

	if err := r.replace(formatLines(file)); err != nil {
		r.log.Warn("write expiration file failed", zap.String("path", r.path), zap.Error(err))
		return fmt.Errorf("%w: write expiration file: %v", quotadomain.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *FileRegistry) read() (expirationFile, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return expirationFile{records: map[string]string{}}, nil
	}
	if err != nil {
		return expirationFile{}, fmt.Errorf("%w: open expiration file: %v", quotadomain.ErrBackendUnavailable, err)
	}
	defer f.Close()

	file, err := parseLines(f)
	if err != nil {
		return expirationFile{}, fmt.Errorf("%w: read expiration file: %v", quotadomain.ErrBackendUnavailable, err)
	}
	return file, nil
}

// replace writes data to a temp file beside the target, syncs it and
// renames it over the target.
func (r *FileRegistry) replace(data []byte) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return err
	}
	tmpName = ""

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

var _ expirationdomain.Registry = (*FileRegistry)(nil)
