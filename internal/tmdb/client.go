// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
client.go - TMDB API client

Backs two read paths: title details for RSS placeholder items and season
listings for missing-episode synthesis. All calls honor the optional
egress proxy since TMDB is frequently unreachable directly from the
networks this proxy runs in.
*/

package tmdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// MediaTypeMovie and MediaTypeTV are the media type discriminators used
// in RSS rows and cache keys.
const (
	MediaTypeMovie = "movie"
	MediaTypeTV    = "tv"
)

// TitleDetails is the subset of a TMDB movie/TV detail response the
// placeholder formatter needs.
type TitleDetails struct {
	Title        string `json:"title"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// DisplayName returns the movie title or TV name, whichever is set.
func (d *TitleDetails) DisplayName() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// PremiereDate returns the release or first-air date, whichever is set.
func (d *TitleDetails) PremiereDate() string {
	if d.ReleaseDate != "" {
		return d.ReleaseDate
	}
	return d.FirstAirDate
}

// Year parses the premiere year, returning 0 when no date is known.
func (d *TitleDetails) Year() int {
	date := d.PremiereDate()
	if len(date) < 4 {
		return 0
	}
	var y int
	if _, err := fmt.Sscanf(date[:4], "%d", &y); err != nil {
		return 0
	}
	return y
}

// SeasonEpisode is one episode entry of a TMDB season listing.
type SeasonEpisode struct {
	ID            int    `json:"id"`
	EpisodeNumber int    `json:"episode_number"`
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	AirDate       string `json:"air_date"`
}

// Season is a TMDB season detail response.
type Season struct {
	Episodes []SeasonEpisode `json:"episodes"`
}

// Client calls the TMDB v3 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a TMDB client from config. A client without an API key
// is still valid; Enabled reports whether calls can be made.
func NewClient(cfg config.TMDBConfig) *Client {
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			logging.Warn().Err(err).Str("proxy_url", cfg.ProxyURL).Msg("Invalid TMDB proxy URL, using direct connection")
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// TitleDetails fetches movie or TV details for the given id.
func (c *Client) TitleDetails(ctx context.Context, mediaType, tmdbID string) (*TitleDetails, error) {
	typePath := MediaTypeTV
	if mediaType == MediaTypeMovie {
		typePath = MediaTypeMovie
	}
	var details TitleDetails
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/%s", typePath, tmdbID), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Season fetches the episode listing for one season of a TV series.
func (c *Client) Season(ctx context.Context, tmdbID string, seasonNumber int) (*Season, error) {
	var season Season
	if err := c.getJSON(ctx, fmt.Sprintf("/tv/%s/season/%d", tmdbID, seasonNumber), &season); err != nil {
		return nil, err
	}
	return &season, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if !c.Enabled() {
		return fmt.Errorf("tmdb api key not configured")
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	u := c.baseURL + path + sep + "api_key=" + url.QueryEscape(c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create tmdb request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("tmdb %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode tmdb response: %w", err)
	}
	return nil
}
