package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/smallbiznis/quotaledger/internal/config"
	expirationdomain "github.com/smallbiznis/quotaledger/internal/expiration/domain"
	obscontext "github.com/smallbiznis/quotaledger/internal/observability/context"
	"github.com/smallbiznis/quotaledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultBackendTimeout = 15 * time.Second

const (
	admissionAdmitted = "admitted"
	admissionDenied   = "denied"
	admissionError    = "error"
)

type ServiceParam struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Limits     quotadomain.LimitStore
	Counter    quotadomain.UsageCounter
	Registry   expirationdomain.Registry
	Defaults   quotadomain.DefaultLimits
	Ledger     quotadomain.ChangeLedger `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

// Service is the quota enforcer. Admission is advisory: usage is read and
// compared but nothing is reserved, so concurrent provisioning in the
// backend can still overshoot a limit. The backend's own limits remain the
// final authority.
//
// A decision is only produced when both the limit and the live usage were
// read. Any failure to read either is returned as an error, never as an
// admit.
type Service struct {
	log *zap.Logger

	limits     quotadomain.LimitStore
	counter    quotadomain.UsageCounter
	registry   expirationdomain.Registry
	defaults   quotadomain.DefaultLimits
	ledger     quotadomain.ChangeLedger
	obsMetrics *obsmetrics.Metrics
	timeout    time.Duration
}

func NewService(p ServiceParam) quotadomain.Service {
	timeout := p.Config.BackendTimeout
	if timeout <= 0 {
		timeout = defaultBackendTimeout
	}
	defaults := p.Defaults
	if defaults == nil {
		defaults = quotadomain.DefaultLimitMap{}
	}
	return &Service{
		log:        p.Log.Named("quota.service"),
		limits:     p.Limits,
		counter:    p.Counter,
		registry:   p.Registry,
		defaults:   defaults,
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
		timeout:    timeout,
	}
}

func (s *Service) CheckAndAdmit(ctx context.Context, req quotadomain.AdmissionRequest) (quotadomain.Decision, error) {
	projectID, kind, err := validate(req.ProjectID, req.Kind)
	if err != nil {
		return quotadomain.Decision{}, err
	}

	decision, err := s.checkAndAdmit(ctx, projectID, kind, req.Delta)
	outcome := admissionAdmitted
	switch {
	case err != nil:
		outcome = admissionError
	case !decision.Admitted:
		outcome = admissionDenied
	}
	s.obsMetrics.RecordAdmission(ctx, kind.String(), outcome)

	log := logger.WithContext(ctx, s.log)
	if err != nil {
		log.Warn("admission check failed",
			zap.String("project_id", projectID),
			zap.String("kind", kind.String()),
			zap.Int64("requested", req.Delta),
			zap.Error(err),
		)
		return quotadomain.Decision{}, err
	}
	log.Debug("admission decided",
		zap.String("project_id", projectID),
		zap.String("kind", kind.String()),
		zap.String("outcome", outcome),
		zap.Int64("usage", decision.Usage),
		zap.Int64("limit", decision.Limit),
		zap.Int64("requested", req.Delta),
	)
	return decision, nil
}

func (s *Service) checkAndAdmit(ctx context.Context, projectID string, kind quotadomain.ResourceKind, delta int64) (quotadomain.Decision, error) {
	limit, source, err := s.resolveLimit(ctx, projectID, kind)
	if err != nil {
		return quotadomain.Decision{}, err
	}
	usage, err := s.count(ctx, projectID, kind)
	if err != nil {
		return quotadomain.Decision{}, err
	}

	decision := quotadomain.Decision{
		ProjectID:   projectID,
		Kind:        kind,
		Admitted:    true,
		Usage:       usage,
		Limit:       limit,
		Requested:   delta,
		LimitSource: source,
	}
	if exceeds(usage, delta, limit) {
		decision.Admitted = false
		decision.Reason = quotadomain.DenyReasonQuotaExceeded
	}
	return decision, nil
}

// exceeds reports usage+delta > limit, treating overflow past MaxInt64 as
// exceeding.
func exceeds(usage, delta, limit int64) bool {
	if delta > 0 && usage > math.MaxInt64-delta {
		return true
	}
	if delta < 0 && usage < math.MinInt64-delta {
		return false
	}
	return usage+delta > limit
}

func (s *Service) GetQuota(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (quotadomain.Quota, error) {
	projectID, kind, err := validate(projectID, kind)
	if err != nil {
		return quotadomain.Quota{}, err
	}
	limit, source, err := s.resolveLimit(ctx, projectID, kind)
	if err != nil {
		return quotadomain.Quota{}, err
	}
	return newQuota(projectID, kind, limit, source), nil
}

// ListQuotas reads every kind of one project concurrently.
func (s *Service) ListQuotas(ctx context.Context, projectID string) ([]quotadomain.Quota, error) {
	projectID, err := quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return nil, err
	}

	kinds := quotadomain.Kinds()
	out := make([]quotadomain.Quota, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			limit, source, err := s.resolveLimit(gctx, projectID, kind)
			if err != nil {
				return err
			}
			out[i] = newQuota(projectID, kind, limit, source)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) SetQuota(ctx context.Context, req quotadomain.SetQuotaRequest) (quotadomain.Quota, error) {
	projectID, kind, err := validate(req.ProjectID, req.Kind)
	if err != nil {
		return quotadomain.Quota{}, err
	}
	if req.Limit < 0 {
		return quotadomain.Quota{}, quotadomain.ErrInvalidLimit
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	change, err := s.limits.SetLimit(callCtx, projectID, kind, req.Limit)
	err = backendErr(callCtx, "set limit", err)
	cancel()

	s.obsMetrics.RecordQuotaUpdate(ctx, kind.String(), change.Backend, obsmetrics.Outcome(err))
	log := logger.WithContext(ctx, s.log)
	if err != nil {
		log.Warn("set quota failed",
			zap.String("project_id", projectID),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		return quotadomain.Quota{}, err
	}

	fields := []zap.Field{
		zap.String("project_id", projectID),
		zap.String("kind", kind.String()),
		zap.Int64("limit", req.Limit),
		zap.String("backend", change.Backend),
	}
	if change.Previous != nil {
		fields = append(fields, zap.Int64("previous_limit", *change.Previous))
	}
	log.Info("quota updated", fields...)

	s.recordChange(ctx, projectID, kind, req.Limit, change)
	return newQuota(projectID, kind, req.Limit, quotadomain.LimitSourceStored), nil
}

// recordChange appends to the ledger. The limit is already committed, so a
// ledger failure is logged rather than returned.
func (s *Service) recordChange(ctx context.Context, projectID string, kind quotadomain.ResourceKind, limit int64, change quotadomain.LimitChange) {
	if s.ledger == nil {
		return
	}
	entry := &quotadomain.QuotaChange{
		ProjectID:     projectID,
		ResourceKind:  kind,
		PreviousLimit: change.Previous,
		NewLimit:      limit,
		Backend:       change.Backend,
		RequestID:     obscontext.RequestIDFromContext(ctx),
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.ledger.Record(callCtx, entry); err != nil {
		logger.WithContext(ctx, s.log).Warn("record quota change failed",
			zap.String("project_id", projectID),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) QuotaHistory(ctx context.Context, projectID string, kind quotadomain.ResourceKind, limit int) ([]quotadomain.QuotaChange, error) {
	projectID, kind, err := validate(projectID, kind)
	if err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return []quotadomain.QuotaChange{}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	changes, err := s.ledger.List(callCtx, projectID, kind, limit)
	if err != nil {
		return nil, backendErr(callCtx, "list quota history", err)
	}
	if changes == nil {
		changes = []quotadomain.QuotaChange{}
	}
	return changes, nil
}

func (s *Service) GetUsage(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (quotadomain.Usage, error) {
	projectID, kind, err := validate(projectID, kind)
	if err != nil {
		return quotadomain.Usage{}, err
	}
	usage, err := s.count(ctx, projectID, kind)
	if err != nil {
		return quotadomain.Usage{}, err
	}
	return quotadomain.Usage{
		ProjectID: projectID,
		Kind:      kind,
		Unit:      kind.Unit(),
		Usage:     usage,
	}, nil
}

func (s *Service) GetExpiration(ctx context.Context, projectID string) (quotadomain.Expiration, error) {
	projectID, err := quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return quotadomain.Expiration{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	date, err := s.registry.Get(callCtx, projectID)
	if err != nil {
		return quotadomain.Expiration{}, backendErr(callCtx, "get expiration", err)
	}
	return quotadomain.Expiration{ProjectID: projectID, ExpiresOn: date}, nil
}

func (s *Service) SetExpiration(ctx context.Context, projectID, date string) (quotadomain.Expiration, error) {
	projectID, err := quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return quotadomain.Expiration{}, err
	}
	date, err = quotadomain.NormalizeDate(date)
	if err != nil {
		return quotadomain.Expiration{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = backendErr(callCtx, "set expiration", s.registry.Set(callCtx, projectID, date))
	cancel()

	s.obsMetrics.RecordExpirationUpdate(ctx, obsmetrics.Outcome(err))
	log := logger.WithContext(ctx, s.log)
	if err != nil {
		log.Warn("set expiration failed", zap.String("project_id", projectID), zap.Error(err))
		return quotadomain.Expiration{}, err
	}
	log.Info("expiration updated", zap.String("project_id", projectID), zap.String("expires_on", date))
	return quotadomain.Expiration{ProjectID: projectID, ExpiresOn: date}, nil
}

// ListExpirations returns every recorded expiration ordered by project id.
func (s *Service) ListExpirations(ctx context.Context) ([]quotadomain.Expiration, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	records, err := s.registry.GetAll(callCtx)
	if err != nil {
		return nil, backendErr(callCtx, "list expirations", err)
	}

	out := make([]quotadomain.Expiration, 0, len(records))
	for projectID, date := range records {
		out = append(out, quotadomain.Expiration{ProjectID: projectID, ExpiresOn: date})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (s *Service) resolveLimit(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (int64, quotadomain.LimitSource, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	limit, found, err := s.limits.GetLimit(callCtx, projectID, kind)
	if err != nil {
		return 0, "", backendErr(callCtx, "get limit", err)
	}
	if !found {
		return s.defaults.DefaultLimit(kind), quotadomain.LimitSourceDefault, nil
	}
	return limit, quotadomain.LimitSourceStored, nil
}

func (s *Service) count(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	usage, err := s.counter.Count(callCtx, projectID, kind)
	if err != nil {
		return 0, backendErr(callCtx, "count usage", err)
	}
	return usage, nil
}

func validate(projectID string, kind quotadomain.ResourceKind) (string, quotadomain.ResourceKind, error) {
	kind, err := quotadomain.ParseKind(string(kind))
	if err != nil {
		return "", "", err
	}
	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return "", "", err
	}
	return projectID, kind, nil
}

func newQuota(projectID string, kind quotadomain.ResourceKind, limit int64, source quotadomain.LimitSource) quotadomain.Quota {
	return quotadomain.Quota{
		ProjectID: projectID,
		Kind:      kind,
		Unit:      kind.Unit(),
		Limit:     limit,
		Source:    source,
	}
}

var typedErrors = []error{
	quotadomain.ErrInvalidArgument,
	quotadomain.ErrNotFound,
	quotadomain.ErrPermissionDenied,
	quotadomain.ErrBackendUnavailable,
}

// backendErr passes typed errors through and turns a timeout or
// cancellation into BackendUnavailable.
func backendErr(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	for _, typed := range typedErrors {
		if errors.Is(err, typed) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", quotadomain.ErrBackendUnavailable, op, err)
	}
	return err
}
