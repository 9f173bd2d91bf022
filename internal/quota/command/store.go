// Package command stores quota limits through the privileged quota
// management tool installed on the controller host.
package command

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"go.uber.org/zap"
)

const BackendName = "command"

// Config locates the quota tool. With UseSudo the tool runs as
// "sudo -n -- <Path> ..." so a missing sudoers entry fails instead of prompting.
type Config struct {
	Path     string
	UseSudo  bool
	SudoPath string
	Timeout  time.Duration

	// ReadPrevious runs a get before each set to report the old limit.
	// It doubles the privileged calls per write.
	ReadPrevious bool
}

type Store struct {
	cfg     Config
	runner  Runner
	log     *zap.Logger
	metrics *obsmetrics.BackendMetrics
}

func NewStore(cfg Config, runner Runner, log *zap.Logger, metrics *obsmetrics.BackendMetrics) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("quota command path is required")
	}
	if cfg.UseSudo && strings.TrimSpace(cfg.SudoPath) == "" {
		cfg.SudoPath = "sudo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		cfg:     cfg,
		runner:  runner,
		log:     log.Named("quota.command"),
		metrics: metrics,
	}, nil
}

func (s *Store) GetLimit(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (int64, bool, error) {
	out, err := s.run(ctx, "get", projectID, kind)
	if err != nil {
		return 0, false, err
	}

	value := strings.TrimSpace(string(out))
	if value == "" {
		return 0, false, nil
	}
	limit, err := strconv.ParseInt(value, 10, 64)
	if err != nil || limit < 0 {
		return 0, false, fmt.Errorf("%w: quota tool returned %q", quotadomain.ErrBackendUnavailable, value)
	}
	return limit, true, nil
}

func (s *Store) SetLimit(ctx context.Context, projectID string, kind quotadomain.ResourceKind, limit int64) (quotadomain.LimitChange, error) {
	change := quotadomain.LimitChange{Backend: BackendName}
	if limit < 0 {
		return change, quotadomain.ErrInvalidLimit
	}

	// The tool has no compare-and-set; the previous value is informational
	// and costs a second privileged invocation.
	if s.cfg.ReadPrevious {
		if prev, found, err := s.GetLimit(ctx, projectID, kind); err == nil && found {
			change.Previous = &prev
		} else if err != nil {
			s.log.Debug("read previous limit failed", zap.String("project_id", projectID), zap.Error(err))
		}
	}

	if _, err := s.run(ctx, "set", projectID, kind, strconv.FormatInt(limit, 10)); err != nil {
		return change, err
	}
	return change, nil
}

// Args builds the argument vector for one tool invocation.
func (s *Store) Args(op, projectID string, kind quotadomain.ResourceKind, extra ...string) (string, []string, error) {
	info, ok := kind.Info()
	if !ok {
		return "", nil, quotadomain.ErrInvalidKind
	}
	id, err := quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return "", nil, err
	}

	args := append([]string{fmt.Sprintf("quota-%s-%s", info.CommandNoun, op), id}, extra...)
	if !s.cfg.UseSudo {
		return s.cfg.Path, args, nil
	}
	return s.cfg.SudoPath, append([]string{"-n", "--", s.cfg.Path}, args...), nil
}

func (s *Store) run(ctx context.Context, op, projectID string, kind quotadomain.ResourceKind, extra ...string) ([]byte, error) {
	name, args, err := s.Args(op, projectID, kind, extra...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, runErr := s.runner.Run(ctx, name, args...)
	err = classify(ctx, res, runErr)
	s.metrics.ObserveCall(BackendName, "quota_"+op, start, err)
	if err != nil {
		s.log.Warn("quota tool failed",
			zap.String("operation", op),
			zap.String("kind", kind.String()),
			zap.String("project_id", projectID),
			zap.Int("exit_code", res.ExitCode),
			zap.Error(err),
		)
		return nil, err
	}
	return res.Stdout, nil
}

var privilegeMarkers = []string{
	"a password is required",
	"is not in the sudoers file",
	"is not allowed to execute",
	"permission denied",
	"operation not permitted",
}

func classify(ctx context.Context, res Result, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: quota tool: %v", quotadomain.ErrBackendUnavailable, ctxErr)
	}

	stderr := strings.TrimSpace(string(res.Stderr))
	if errors.Is(err, fs.ErrPermission) || res.ExitCode == 126 || hasPrivilegeMarker(stderr) {
		return fmt.Errorf("%w: quota tool: %s", quotadomain.ErrPermissionDenied, firstNonEmpty(stderr, err.Error()))
	}
	return fmt.Errorf("%w: quota tool exit %d: %s", quotadomain.ErrBackendUnavailable, res.ExitCode, firstNonEmpty(stderr, err.Error()))
}

func hasPrivilegeMarker(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range privilegeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
