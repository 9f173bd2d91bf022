// Package quotactl implements the quotactl command line client for the
// quota admin API.
package quotactl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

// APIError is a non-2xx answer from the admin API.
type APIError struct {
	Status  int
	Type    string `json:"type"`
	Message string `json:"message"`
	Errors  []struct {
		Field   string `json:"field"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s (%d): %s: %s", e.Type, e.Status, e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Type, e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
	}
}

func (c *Client) ListQuotas(ctx context.Context, projectID string) ([]quotadomain.Quota, error) {
	var out []quotadomain.Quota
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "quotas"), nil, &out)
	return out, err
}

func (c *Client) GetQuota(ctx context.Context, projectID, kind string) (quotadomain.Quota, error) {
	var out quotadomain.Quota
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "quotas", kind), nil, &out)
	return out, err
}

func (c *Client) SetQuota(ctx context.Context, projectID, kind string, limit int64) (quotadomain.Quota, error) {
	var out quotadomain.Quota
	err := c.do(ctx, http.MethodPut, projectPath(projectID, "quotas", kind), map[string]int64{"limit": limit}, &out)
	return out, err
}

func (c *Client) QuotaHistory(ctx context.Context, projectID, kind string, limit int) ([]quotadomain.QuotaChange, error) {
	path := projectPath(projectID, "quotas", kind, "history")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []quotadomain.QuotaChange
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) GetUsage(ctx context.Context, projectID, kind string) (quotadomain.Usage, error) {
	var out quotadomain.Usage
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "usage", kind), nil, &out)
	return out, err
}

func (c *Client) CheckAdmission(ctx context.Context, projectID, kind string, delta int64) (quotadomain.Decision, error) {
	var out quotadomain.Decision
	body := map[string]any{"kind": kind, "delta": delta}
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "admissions"), body, &out)
	return out, err
}

func (c *Client) GetExpiration(ctx context.Context, projectID string) (quotadomain.Expiration, error) {
	var out quotadomain.Expiration
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "expiration"), nil, &out)
	return out, err
}

func (c *Client) SetExpiration(ctx context.Context, projectID, date string) (quotadomain.Expiration, error) {
	var out quotadomain.Expiration
	err := c.do(ctx, http.MethodPut, projectPath(projectID, "expiration"), map[string]string{"expires_on": date}, &out)
	return out, err
}

func (c *Client) ListExpirations(ctx context.Context) ([]quotadomain.Expiration, error) {
	var out []quotadomain.Expiration
	err := c.do(ctx, http.MethodGet, "/api/expirations", nil, &out)
	return out, err
}

func projectPath(projectID string, parts ...string) string {
	segments := []string{"/api/projects", url.PathEscape(projectID)}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Type == "" {
			return &APIError{Status: resp.StatusCode, Type: "http_error", Message: strings.TrimSpace(string(raw))}
		}
		envelope.Error.Status = resp.StatusCode
		return &envelope.Error
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
