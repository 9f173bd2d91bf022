package counter

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"go.uber.org/zap"
)

type serverPage struct {
	Servers []struct {
		ID       string `json:"id"`
		TenantID string `json:"tenant_id"`
	} `json:"servers"`
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"servers_links"`
}

func (p serverPage) nextLink() string {
	for _, l := range p.Links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

// ComputeCounter counts the servers of a project across every page.
type ComputeCounter struct {
	b *backend
}

func NewComputeCounter(cfg BackendConfig, client *http.Client, log *zap.Logger, metrics *obsmetrics.BackendMetrics) (*ComputeCounter, error) {
	b, err := newBackend("compute", cfg, client, log, metrics)
	if err != nil {
		return nil, err
	}
	return &ComputeCounter{b: b}, nil
}

func (c *ComputeCounter) Count(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (total int64, err error) {
	start := time.Now()
	defer func() { c.b.metrics.ObserveCall(c.b.name, "count", start, err) }()

	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return 0, err
	}

	query := url.Values{}
	query.Set("all_tenants", "1")
	query.Set("project_id", projectID)
	query.Set("limit", strconv.Itoa(c.b.pageSize))
	link := "/servers/detail?" + query.Encode()

	p := c.b.newPager()
	for link != "" {
		target, err := p.next(link)
		if err != nil {
			return 0, err
		}
		var page serverPage
		if err := c.b.getJSON(ctx, target, &page); err != nil {
			return 0, err
		}
		for _, s := range page.Servers {
			if s.TenantID == projectID {
				total++
			}
		}
		link = page.nextLink()
	}
	return total, nil
}
