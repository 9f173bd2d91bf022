// Package counter reads live resource consumption from the image catalog,
// object store and compute service.
package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	authTokenHeader = "X-Auth-Token"

	defaultPageSize = 200
	defaultMaxPages = 1000
	maxErrorBody    = 512
)

// NewHTTPClient returns a client whose requests are traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// backend is the shared request plumbing for one upstream service.
type backend struct {
	name     string
	base     *url.URL
	token    string
	client   *http.Client
	pageSize int
	maxPages int
	log      *zap.Logger
	metrics  *obsmetrics.BackendMetrics
}

type BackendConfig struct {
	Endpoint  string
	AuthToken string
	PageSize  int
	MaxPages  int
}

func newBackend(name string, cfg BackendConfig, client *http.Client, log *zap.Logger, metrics *obsmetrics.BackendMetrics) (*backend, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%s endpoint is required", name)
	}
	base, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid %s endpoint %q", name, endpoint)
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &backend{
		name:     name,
		base:     base,
		token:    cfg.AuthToken,
		client:   client,
		pageSize: pageSize,
		maxPages: maxPages,
		log:      log.Named("usage." + name),
		metrics:  metrics,
	}, nil
}

// resolve turns an endpoint-relative path or a continuation link into an
// absolute URL. Absolute paths keep the endpoint's path prefix.
func (b *backend) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}
	prefix := strings.TrimSuffix(b.base.Path, "/")
	if strings.HasPrefix(u.Path, "/") && prefix != "" && !strings.HasPrefix(u.Path, prefix+"/") {
		u.Path = prefix + u.Path
	} else if !strings.HasPrefix(u.Path, "/") {
		u.Path = prefix + "/" + u.Path
	}
	return b.base.ResolveReference(u), nil
}

func (b *backend) do(ctx context.Context, method string, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", quotadomain.ErrBackendUnavailable, b.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if b.token != "" {
		req.Header.Set(authTokenHeader, b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", quotadomain.ErrBackendUnavailable, b.name, err)
	}
	return resp, nil
}

// getJSON fetches target and decodes a 2xx body into out.
func (b *backend) getJSON(ctx context.Context, target *url.URL, out any) error {
	resp, err := b.do(ctx, http.MethodGet, target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := b.checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", quotadomain.ErrBackendUnavailable, b.name, err)
	}
	return nil
}

func (b *backend) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(body))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s returned %d", quotadomain.ErrPermissionDenied, b.name, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s returned %d: %s", quotadomain.ErrBackendUnavailable, b.name, resp.StatusCode, detail)
}

// pager follows continuation links and rejects loops and runaway listings.
type pager struct {
	b     *backend
	seen  map[string]struct{}
	pages int
}

func (b *backend) newPager() *pager {
	return &pager{b: b, seen: map[string]struct{}{}}
}

func (p *pager) next(link string) (*url.URL, error) {
	target, err := p.b.resolve(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad continuation %q", quotadomain.ErrBackendUnavailable, p.b.name, link)
	}
	key := target.String()
	if _, dup := p.seen[key]; dup {
		return nil, fmt.Errorf("%w: %s: continuation repeated", quotadomain.ErrBackendUnavailable, p.b.name)
	}
	p.seen[key] = struct{}{}
	p.pages++
	if p.pages > p.b.maxPages {
		return nil, fmt.Errorf("%w: %s: more than %d pages", quotadomain.ErrBackendUnavailable, p.b.name, p.b.maxPages)
	}
	return target, nil
}
