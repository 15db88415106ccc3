// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

// Package models defines the shared domain types: catalog items as returned
// by the upstream media server, item pages, and the virtual library and
// advanced filter definitions persisted in the configuration document.
package models

import (
	"strconv"
	"strings"
)

// Item is a catalog entity as the upstream serves it. The upstream schema
// is wide and version-dependent, so items stay generic maps: interceptors
// read and rewrite individual fields while every unknown field survives the
// JSON round-trip untouched.
type Item map[string]any

// ID returns the item's id, or empty string when absent.
func (it Item) ID() string {
	return it.String("Id")
}

// Type returns the item's media type (Movie, Series, Episode, ...).
func (it Item) Type() string {
	return it.String("Type")
}

// Name returns the item's display name.
func (it Item) Name() string {
	return it.String("Name")
}

// String returns the string value at key, or empty string when the key is
// absent or not a string.
func (it Item) String(key string) string {
	s, _ := it[key].(string)
	return s
}

// Int returns the integer value at key. JSON numbers decode as float64, so
// both numeric representations are accepted.
func (it Item) Int(key string) (int, bool) {
	switch v := it[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// Map returns the nested object at key.
func (it Item) Map(key string) (map[string]any, bool) {
	m, ok := it[key].(map[string]any)
	return m, ok
}

// ProviderID returns the external provider identifier for the given
// provider name (e.g. "Tmdb", "Imdb"), matched case-insensitively the way
// upstream clients do.
func (it Item) ProviderID(provider string) (string, bool) {
	ids, ok := it.Map("ProviderIds")
	if !ok {
		return "", false
	}
	for k, v := range ids {
		if !strings.EqualFold(k, provider) {
			continue
		}
		switch id := v.(type) {
		case string:
			if id == "" {
				return "", false
			}
			return id, true
		case float64:
			return strconv.FormatInt(int64(id), 10), true
		}
	}
	return "", false
}

// TmdbID returns the item's TMDB identifier, if present.
func (it Item) TmdbID() (string, bool) {
	return it.ProviderID("Tmdb")
}

// IndexNumber returns the episode or season index, if present.
func (it Item) IndexNumber() (int, bool) {
	return it.Int("IndexNumber")
}

// GetPath resolves a dotted field path ("ProviderIds.Tmdb", "Genres")
// against the item by walking nested objects. A segment landing on
// anything other than an object while segments remain resolves to nil, as
// does an absent key.
func (it Item) GetPath(path string) any {
	var v any = map[string]any(it)
	for _, seg := range strings.Split(path, ".") {
		node, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v, ok = node[seg]
		if !ok {
			return nil
		}
	}
	return v
}

// Clone returns a deep copy of the item. Cached pages hand out clones so a
// later rewrite cannot mutate the cached bytes' source.
func (it Item) Clone() Item {
	return Item(deepCopyMap(map[string]any(it)))
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
