// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, first hit
// wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/prism/config.yaml",
	"/etc/prism/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "PRISM_CONFIG"

// Load builds the configuration from layered sources in ascending
// precedence: struct defaults, the YAML config file (if any), then
// environment variables.
func Load() (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else {
		configPath = DefaultConfigPaths[0]
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, "", fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, configPath, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when supplied
// via environment variables.
var sliceConfigPaths = []string{
	"auth.authorized_keys",
	"display_order",
	"hidden_views",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to config paths.
// Unrecognized variables are dropped so unrelated environment noise never
// leaks into the configuration.
//
// Examples:
//   - EMBY_URL       -> upstream.url
//   - EMBY_API_KEY   -> upstream.api_key
//   - HTTP_PORT      -> server.port
//   - LOG_LEVEL      -> logging.level
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"emby_url":     "upstream.url",
		"emby_api_key": "upstream.api_key",

		"http_host":  "server.host",
		"http_port":  "server.port",
		"public_url": "server.public_url",

		"enable_access_control": "auth.enabled",
		"proxy_password":        "auth.password",
		"authorized_api_keys":   "auth.authorized_keys",

		"enable_cache":   "cache.enabled",
		"cache_capacity": "cache.capacity",
		"cache_ttl":      "cache.ttl",

		"database_path": "database.path",
		"metadata_path": "database.metadata_path",

		"covers_dir":          "covers.dir",
		"default_cover_style": "covers.default_style",

		"tmdb_api_key": "tmdb.api_key",
		"tmdb_proxy":   "tmdb.proxy_url",

		"force_merge_by_tmdb_id": "force_merge_by_tmdb_id",
		"show_missing_episodes":  "show_missing_episodes",
		"display_order":          "display_order",
		"hidden_views":           "hidden_views",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if path, ok := mappings[strings.ToLower(key)]; ok {
		return path
	}

	// PRISM_ prefixed variables address any path directly with double
	// underscores as section separators: PRISM_AUTH__TRUST_TTL.
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "prism_") && lower != strings.ToLower(ConfigPathEnvVar) {
		return strings.ReplaceAll(strings.TrimPrefix(lower, "prism_"), "__", ".")
	}
	return ""
}
