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

type imagePage struct {
	Images []struct {
		ID    string `json:"id"`
		Owner string `json:"owner"`
	} `json:"images"`
	Next string `json:"next"`
}

// ImageCounter counts catalog images owned by a project. Every page of the
// listing is read before the count is returned.
type ImageCounter struct {
	b *backend
}

func NewImageCounter(cfg BackendConfig, client *http.Client, log *zap.Logger, metrics *obsmetrics.BackendMetrics) (*ImageCounter, error) {
	b, err := newBackend("image_catalog", cfg, client, log, metrics)
	if err != nil {
		return nil, err
	}
	return &ImageCounter{b: b}, nil
}

func (c *ImageCounter) Count(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (total int64, err error) {
	start := time.Now()
	defer func() { c.b.metrics.ObserveCall(c.b.name, "count", start, err) }()

	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return 0, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.b.pageSize))
	link := "/v2/images?" + query.Encode()

	p := c.b.newPager()
	for link != "" {
		target, err := p.next(link)
		if err != nil {
			return 0, err
		}
		var page imagePage
		if err := c.b.getJSON(ctx, target, &page); err != nil {
			return 0, err
		}
		for _, img := range page.Images {
			if img.Owner == projectID {
				total++
			}
		}
		link = page.Next
	}

	c.b.log.Debug("counted images",
		zap.String("project_id", projectID),
		zap.Int64("count", total),
		zap.Int("pages", p.pages),
	)
	return total, nil
}
