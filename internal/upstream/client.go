// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
client.go - Upstream media server client

One shared, long-lived client backs every proxied request: a pooled HTTP
transport, a circuit breaker, and an optional rate limiter for
exhaustive-pagination batch fetches. Helpers cover the typed listing and
detail calls the interceptors make; Do exposes the raw round trip for the
streaming forwarder.

API reference: https://dev.emby.media/doc/restapi/index.html
*/

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
	"github.com/prism-media/prism/internal/models"
)

// BatchSize is the page size used for exhaustive pagination.
const BatchSize = 200

// Client talks to the real media server.
type Client struct {
	baseURL     string
	apiKey      string
	timeout     time.Duration
	scanTimeout time.Duration

	httpClient *http.Client
	breaker    *Breaker
	limiter    *rate.Limiter
}

// NewClient creates the shared upstream client. The underlying transport
// pool lives for the process lifetime.
func NewClient(cfg config.UpstreamConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}

	var limiter *rate.Limiter
	if cfg.BatchRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchRateLimit), 1)
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:      cfg.APIKey,
		timeout:     cfg.Timeout,
		scanTimeout: cfg.ScanTimeout,
		// No client-level timeout: the forwarder streams bodies of
		// unbounded length, so deadlines come from per-call contexts.
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breaker: NewBreaker("upstream"),
		limiter: limiter,
	}
}

// BaseURL returns the configured upstream address without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WebSocketURL translates the upstream base URL to the ws(s) scheme and
// attaches the given path and raw query.
func (c *Client) WebSocketURL(path, rawQuery string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid upstream URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path
	u.RawQuery = rawQuery
	return u.String(), nil
}

// Do performs a raw request against the upstream at the given path and
// query, relaying the provided headers and body unchanged. The caller owns
// the response body.
func (c *Client) Do(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(req)
	})
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues("ok").Inc()
	return resp, nil
}

// getJSON performs a GET under the ordinary timeout and decodes the JSON
// body into out. Non-200 statuses are errors here; handlers needing
// passthrough semantics use Do directly.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, header http.Header, out any) error {
	return c.getJSONTimeout(ctx, path, params, header, out, c.timeout)
}

func (c *Client) getJSONTimeout(ctx context.Context, path string, params url.Values, header http.Header, out any, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.Do(ctx, http.MethodGet, path, params.Encode(), header, nil)
	if err != nil {
		return fmt.Errorf("upstream request %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upstream %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode upstream response from %s: %w", path, err)
	}
	return nil
}

// UserItems fetches a page of a user's item listing.
func (c *Client) UserItems(ctx context.Context, userID string, params url.Values, header http.Header) (*models.ItemsPage, error) {
	page := &models.ItemsPage{}
	path := fmt.Sprintf("/emby/Users/%s/Items", userID)
	if err := c.getJSON(ctx, path, params, header, page); err != nil {
		return nil, err
	}
	return page, nil
}

// ItemDetail fetches a single item with the given field selection.
func (c *Client) ItemDetail(ctx context.Context, userID, itemID, fields string, params url.Values, header http.Header) (models.Item, error) {
	p := cloneValues(params)
	if fields != "" {
		p.Set("Fields", fields)
	}
	item := models.Item{}
	path := fmt.Sprintf("/emby/Users/%s/Items/%s", userID, itemID)
	if err := c.getJSON(ctx, path, p, header, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// ItemsByIDs batch-fetches items by id list, inheriting the caller's field
// selection from params.
func (c *Client) ItemsByIDs(ctx context.Context, userID string, ids []string, params url.Values, header http.Header) (*models.ItemsPage, error) {
	p := cloneValues(params)
	p.Set("Ids", strings.Join(ids, ","))
	return c.UserItems(ctx, userID, p, header)
}

// SeriesSeasons fetches a series' season listing.
func (c *Client) SeriesSeasons(ctx context.Context, seriesID string, params url.Values, header http.Header) (*models.ItemsPage, error) {
	page := &models.ItemsPage{}
	path := fmt.Sprintf("/emby/Shows/%s/Seasons", seriesID)
	if err := c.getJSON(ctx, path, params, header, page); err != nil {
		return nil, err
	}
	return page, nil
}

// SeriesEpisodes fetches a series' episode listing, usually scoped by a
// SeasonId parameter.
func (c *Client) SeriesEpisodes(ctx context.Context, seriesID string, params url.Values, header http.Header) (*models.ItemsPage, error) {
	page := &models.ItemsPage{}
	path := fmt.Sprintf("/emby/Shows/%s/Episodes", seriesID)
	if err := c.getJSON(ctx, path, params, header, page); err != nil {
		return nil, err
	}
	return page, nil
}

// FindSeriesIDsByTmdbID scans the full catalog for series carrying the
// given TMDB id. The upstream cannot filter on the id value itself, only
// on its presence, so the comparison happens here. Runs under the long
// scan timeout.
func (c *Client) FindSeriesIDsByTmdbID(ctx context.Context, userID, tmdbID string, params url.Values, header http.Header) ([]string, error) {
	p := cloneValues(params)
	p.Set("Recursive", "true")
	p.Set("IncludeItemTypes", "Series")
	p.Set("Fields", "ProviderIds")
	p.Set("HasTmdbId", "true")
	p.Set("UserId", userID)

	page := &models.ItemsPage{}
	if err := c.getJSONTimeout(ctx, "/emby/Items", p, header, page, c.scanTimeout); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, item := range page.Items {
		id, ok := item.TmdbID()
		if !ok || id != tmdbID {
			continue
		}
		if _, dup := seen[item.ID()]; dup {
			continue
		}
		seen[item.ID()] = struct{}{}
		ids = append(ids, item.ID())
	}
	return ids, nil
}

// AllUserItems exhaustively pages through a listing in fixed-size batches
// until a short batch signals end of data, accumulating every item.
// Client paging parameters must already be absent from params.
func (c *Client) AllUserItems(ctx context.Context, userID string, params url.Values, header http.Header) ([]models.Item, error) {
	if c.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.scanTimeout)
		defer cancel()
	}

	var all []models.Item
	for offset := 0; ; offset += BatchSize {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		p := cloneValues(params)
		p.Set("StartIndex", strconv.Itoa(offset))
		p.Set("Limit", strconv.Itoa(BatchSize))

		page := &models.ItemsPage{}
		path := fmt.Sprintf("/emby/Users/%s/Items", userID)
		if err := c.getJSONTimeout(ctx, path, p, header, page, 0); err != nil {
			return nil, err
		}
		metrics.MergeBatchesFetched.Inc()

		all = append(all, page.Items...)
		if len(page.Items) < BatchSize {
			break
		}
	}

	logging.Ctx(ctx).Debug().Int("total", len(all)).Msg("Exhaustive pagination complete")
	return all, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
