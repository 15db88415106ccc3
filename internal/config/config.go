// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

// Package config loads and persists the Prism configuration document. The
// static sections (server, upstream, logging) come from defaults, an
// optional YAML file, and environment variables in ascending precedence.
// The dynamic sections (virtual libraries, advanced filters, display
// order) are additionally mutable at runtime through the Store and written
// back to the same YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/prism-media/prism/internal/models"
)

// Config is the full configuration document.
type Config struct {
	Server   ServerConfig   `koanf:"server" json:"server" yaml:"server"`
	Upstream UpstreamConfig `koanf:"upstream" json:"upstream" yaml:"upstream"`
	Auth     AuthConfig     `koanf:"auth" json:"auth" yaml:"auth"`
	Cache    CacheConfig    `koanf:"cache" json:"cache" yaml:"cache"`
	Database DatabaseConfig `koanf:"database" json:"database" yaml:"database"`
	Covers   CoversConfig   `koanf:"covers" json:"covers" yaml:"covers"`
	TMDB     TMDBConfig     `koanf:"tmdb" json:"tmdb" yaml:"tmdb"`
	Logging  LoggingConfig  `koanf:"logging" json:"logging" yaml:"logging"`

	// Catalog behavior toggles.
	ForceMergeByTmdbID  bool     `koanf:"force_merge_by_tmdb_id" json:"force_merge_by_tmdb_id" yaml:"force_merge_by_tmdb_id"`
	ShowMissingEpisodes bool     `koanf:"show_missing_episodes" json:"show_missing_episodes" yaml:"show_missing_episodes"`
	DisplayOrder        []string `koanf:"display_order" json:"display_order" yaml:"display_order"`
	HiddenViews         []string `koanf:"hidden_views" json:"hidden_views" yaml:"hidden_views"`

	VirtualLibraries []models.VirtualLibrary `koanf:"virtual_libraries" json:"virtual_libraries" yaml:"virtual_libraries" validate:"dive"`
	AdvancedFilters  []models.AdvancedFilter `koanf:"advanced_filters" json:"advanced_filters" yaml:"advanced_filters" validate:"dive"`
}

// ServerConfig controls the proxy's own listener.
type ServerConfig struct {
	Host string `koanf:"host" json:"host" yaml:"host"`
	Port int    `koanf:"port" json:"port" yaml:"port" validate:"min=1,max=65535"`

	// PublicURL is the address clients reach the proxy at, used when
	// rewriting upstream-reported addresses. Defaults to host:port.
	PublicURL string `koanf:"public_url" json:"public_url" yaml:"public_url"`

	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// CORSOrigins lists browser origins allowed to call the admin API.
	// Empty disables CORS entirely, which suits same-origin deployments.
	CORSOrigins []string `koanf:"cors_origins" json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// UpstreamConfig points at the real media server.
type UpstreamConfig struct {
	URL    string `koanf:"url" json:"url" yaml:"url" validate:"required,url"`
	APIKey string `koanf:"api_key" json:"api_key" yaml:"api_key"`

	// Timeout bounds ordinary metadata calls; ScanTimeout bounds global
	// catalog scans (series matching, exhaustive pagination).
	Timeout     time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	ScanTimeout time.Duration `koanf:"scan_timeout" json:"scan_timeout" yaml:"scan_timeout"`

	// BatchRateLimit caps exhaustive-pagination batch fetches per second.
	// Zero disables throttling.
	BatchRateLimit float64 `koanf:"batch_rate_limit" json:"batch_rate_limit" yaml:"batch_rate_limit"`
}

// AuthConfig controls the access gate in front of the proxy.
type AuthConfig struct {
	Enabled        bool     `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Password       string   `koanf:"password" json:"password" yaml:"password"`
	Salt           string   `koanf:"salt" json:"salt" yaml:"salt"`
	AuthorizedKeys []string `koanf:"authorized_keys" json:"authorized_keys" yaml:"authorized_keys"`

	TrustTTL     time.Duration `koanf:"trust_ttl" json:"trust_ttl" yaml:"trust_ttl"`
	CookieMaxAge time.Duration `koanf:"cookie_max_age" json:"cookie_max_age" yaml:"cookie_max_age"`

	// LoginRateLimit caps login attempts per client per window. Zero
	// leaves the verify endpoint unthrottled.
	LoginRateLimit  int           `koanf:"login_rate_limit" json:"login_rate_limit" yaml:"login_rate_limit"`
	LoginRateWindow time.Duration `koanf:"login_rate_window" json:"login_rate_window" yaml:"login_rate_window"`
}

// CacheConfig bounds the response cache.
type CacheConfig struct {
	Enabled  bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Capacity int           `koanf:"capacity" json:"capacity" yaml:"capacity" validate:"min=1"`
	TTL      time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl"`

	// LibraryItemsCapacity bounds the per-library cached pages consumed
	// by the cover generator.
	LibraryItemsCapacity int `koanf:"library_items_capacity" json:"library_items_capacity" yaml:"library_items_capacity" validate:"min=1"`
}

// DatabaseConfig locates the local stores: the DuckDB file holding RSS
// lookup rows and the Badger directory holding cached external metadata.
type DatabaseConfig struct {
	Path         string `koanf:"path" json:"path" yaml:"path"`
	MetadataPath string `koanf:"metadata_path" json:"metadata_path" yaml:"metadata_path"`
}

// CoversConfig controls generated library covers.
type CoversConfig struct {
	Dir          string `koanf:"dir" json:"dir" yaml:"dir"`
	DefaultStyle string `koanf:"default_style" json:"default_style" yaml:"default_style"`

	// PlaceholderDir holds the static stand-in images served while a
	// cover is generating or an item only exists as external metadata.
	PlaceholderDir string `koanf:"placeholder_dir" json:"placeholder_dir" yaml:"placeholder_dir"`
}

// TMDBConfig configures the external episode/movie metadata source.
type TMDBConfig struct {
	APIKey   string        `koanf:"api_key" json:"api_key" yaml:"api_key"`
	ProxyURL string        `koanf:"proxy_url" json:"proxy_url" yaml:"proxy_url"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string `koanf:"base_url" json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" json:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller" json:"caller" yaml:"caller"`
}

// defaultSalt matches the historical cookie-hash salt so existing session
// cookies stay valid across deployments.
const defaultSalt = "emby_virtual_proxy_salt"

// Default returns a fresh config populated with the built-in defaults.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8999,
			ReadTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Upstream: UpstreamConfig{
			URL:            "http://127.0.0.1:8096",
			Timeout:        30 * time.Second,
			ScanTimeout:    120 * time.Second,
			BatchRateLimit: 0,
		},
		Auth: AuthConfig{
			Enabled:         false,
			Salt:            defaultSalt,
			TrustTTL:        24 * time.Hour,
			CookieMaxAge:    30 * 24 * time.Hour,
			LoginRateLimit:  0,
			LoginRateWindow: time.Minute,
		},
		Cache: CacheConfig{
			Enabled:              true,
			Capacity:             500,
			TTL:                  5 * time.Minute,
			LibraryItemsCapacity: 100,
		},
		Database: DatabaseConfig{
			Path:         "/data/prism.duckdb",
			MetadataPath: "/data/metadata",
		},
		Covers: CoversConfig{
			Dir:            "/data/covers",
			DefaultStyle:   "mosaic",
			PlaceholderDir: "/data/placeholders",
		},
		TMDB: TMDBConfig{
			Timeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New()

// Validate checks structural constraints plus cross-references between
// libraries and filters.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	filters := make(map[string]struct{}, len(c.AdvancedFilters))
	for _, f := range c.AdvancedFilters {
		filters[f.ID] = struct{}{}
	}

	libIDs := make(map[string]struct{}, len(c.VirtualLibraries))
	for i := range c.VirtualLibraries {
		lib := &c.VirtualLibraries[i]
		if _, dup := libIDs[lib.ID]; dup {
			return fmt.Errorf("duplicate virtual library id %q", lib.ID)
		}
		libIDs[lib.ID] = struct{}{}

		switch lib.ResourceType {
		case models.ResourceAll, models.ResourceRSSHub:
		default:
			if lib.ResourceID == "" {
				return fmt.Errorf("virtual library %q: resource_type %s requires a resource_id", lib.Name, lib.ResourceType)
			}
		}
		if lib.AdvancedFilterID != "" {
			if _, ok := filters[lib.AdvancedFilterID]; !ok {
				return fmt.Errorf("virtual library %q references unknown advanced filter %q", lib.Name, lib.AdvancedFilterID)
			}
		}
	}
	return nil
}

// LibraryByID returns the virtual library with the given id.
func (c *Config) LibraryByID(id string) (*models.VirtualLibrary, bool) {
	for i := range c.VirtualLibraries {
		if c.VirtualLibraries[i].ID == id {
			return &c.VirtualLibraries[i], true
		}
	}
	return nil, false
}

// FilterByID returns the advanced filter with the given id.
func (c *Config) FilterByID(id string) (*models.AdvancedFilter, bool) {
	for i := range c.AdvancedFilters {
		if c.AdvancedFilters[i].ID == id {
			return &c.AdvancedFilters[i], true
		}
	}
	return nil, false
}

// LibraryFilter resolves a library's advanced filter, if configured.
func (c *Config) LibraryFilter(lib *models.VirtualLibrary) (*models.AdvancedFilter, bool) {
	if lib.AdvancedFilterID == "" {
		return nil, false
	}
	return c.FilterByID(lib.AdvancedFilterID)
}

// MergeEnabledLibraries returns the libraries with effective-merge on.
func (c *Config) MergeEnabledLibraries() []models.VirtualLibrary {
	var out []models.VirtualLibrary
	for _, lib := range c.VirtualLibraries {
		if lib.EffectiveMerge(c.ForceMergeByTmdbID) {
			out = append(out, lib)
		}
	}
	return out
}
