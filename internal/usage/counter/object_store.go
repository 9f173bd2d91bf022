package counter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"go.uber.org/zap"
)

const (
	bytesUsedHeader = "X-Account-Bytes-Used"
	bytesPerMB      = 1 << 20
)

// ObjectStoreCounter reads the per-account byte total that the object
// store maintains and reports it in whole megabytes, rounded up.
type ObjectStoreCounter struct {
	b      *backend
	prefix string
}

func NewObjectStoreCounter(cfg BackendConfig, accountPrefix string, client *http.Client, log *zap.Logger, metrics *obsmetrics.BackendMetrics) (*ObjectStoreCounter, error) {
	b, err := newBackend("object_store", cfg, client, log, metrics)
	if err != nil {
		return nil, err
	}
	return &ObjectStoreCounter{b: b, prefix: accountPrefix}, nil
}

func (c *ObjectStoreCounter) Count(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (mb int64, err error) {
	start := time.Now()
	defer func() { c.b.metrics.ObserveCall(c.b.name, "count", start, err) }()

	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return 0, err
	}

	target, err := c.b.resolve("/v1/" + url.PathEscape(c.prefix+projectID))
	if err != nil {
		return 0, fmt.Errorf("%w: object_store: %v", quotadomain.ErrBackendUnavailable, err)
	}
	resp, err := c.b.do(ctx, http.MethodHead, target)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// The account is created on first write.
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if err := c.b.checkStatus(resp); err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(resp.Header.Get(bytesUsedHeader))
	bytes, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil || bytes < 0 {
		return 0, fmt.Errorf("%w: object_store: invalid %s %q", quotadomain.ErrBackendUnavailable, bytesUsedHeader, raw)
	}
	return BytesToMB(bytes), nil
}

// BytesToMB converts bytes to mebibytes, rounding any remainder up.
func BytesToMB(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}
	return (bytes-1)/bytesPerMB + 1
}
