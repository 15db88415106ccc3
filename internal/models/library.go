// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package models

// Resource types a virtual library can bind to.
const (
	ResourceCollection = "collection"
	ResourceTag        = "tag"
	ResourceGenre      = "genre"
	ResourceStudio     = "studio"
	ResourcePerson     = "person"
	ResourceAll        = "all"
	ResourceRSSHub     = "rsshub"
)

// VirtualLibrary defines a synthesized catalog container. Instances live in
// the persisted configuration document; request handlers only ever see
// snapshots.
type VirtualLibrary struct {
	ID               string `json:"id" koanf:"id" validate:"required"`
	Name             string `json:"name" koanf:"name" validate:"required"`
	ResourceType     string `json:"resource_type" koanf:"resource_type" validate:"required,oneof=collection tag genre studio person all rsshub"`
	ResourceID       string `json:"resource_id,omitempty" koanf:"resource_id"`
	AdvancedFilterID string `json:"advanced_filter_id,omitempty" koanf:"advanced_filter_id"`
	MergeByTmdbID    bool   `json:"merge_by_tmdb_id" koanf:"merge_by_tmdb_id"`
	ImageTag         string `json:"image_tag,omitempty" koanf:"image_tag"`
	CoverStyle       string `json:"cover_style,omitempty" koanf:"cover_style"`
	Order            int    `json:"order" koanf:"order"`

	// RSS fields, meaningful only when ResourceType is rsshub.
	RSSFeedURL       string `json:"rss_feed_url,omitempty" koanf:"rss_feed_url"`
	RSSFeedKind      string `json:"rss_feed_kind,omitempty" koanf:"rss_feed_kind"`
	RSSRetentionDays int    `json:"rss_retention_days,omitempty" koanf:"rss_retention_days"`
	RSSFallbackTmdb  string `json:"rss_fallback_tmdb,omitempty" koanf:"rss_fallback_tmdb"`
}

// IsRSS reports whether the library is backed by the RSS lookup path
// instead of a direct upstream query.
func (v *VirtualLibrary) IsRSS() bool {
	return v.ResourceType == ResourceRSSHub
}

// EffectiveMerge reports whether listings for this library deduplicate by
// TMDB id, honoring the global force flag.
func (v *VirtualLibrary) EffectiveMerge(forceGlobal bool) bool {
	return v.MergeByTmdbID || forceGlobal
}

// ContainerParam returns the upstream query parameter that scopes a search
// to this library's bound resource. Empty for "all" and "rsshub".
func (v *VirtualLibrary) ContainerParam() string {
	switch v.ResourceType {
	case ResourceCollection:
		return "CollectionIds"
	case ResourceTag:
		return "TagIds"
	case ResourcePerson:
		return "PersonIds"
	case ResourceGenre:
		return "GenreIds"
	case ResourceStudio:
		return "StudioIds"
	}
	return ""
}

// Filter rule operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
)

// FilterRule is a single condition inside an advanced filter. Field is a
// dotted path into a catalog item; Value is unused for the emptiness
// operators.
type FilterRule struct {
	Field    string `json:"field" koanf:"field" validate:"required"`
	Operator string `json:"operator" koanf:"operator" validate:"required,oneof=equals not_equals contains not_contains greater_than less_than is_empty is_not_empty"`
	Value    string `json:"value,omitempty" koanf:"value"`
}

// AdvancedFilter is a named, reusable rule set referenced by virtual
// libraries.
type AdvancedFilter struct {
	ID       string       `json:"id" koanf:"id" validate:"required"`
	Name     string       `json:"name" koanf:"name" validate:"required"`
	MatchAll bool         `json:"match_all" koanf:"match_all"`
	Rules    []FilterRule `json:"rules" koanf:"rules" validate:"dive"`
}
