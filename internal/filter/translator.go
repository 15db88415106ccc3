// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

// Package filter translates advanced filter rules into native upstream
// query parameters and evaluates the untranslatable remainder in memory
// after fetch.
package filter

import (
	"fmt"
	"strings"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
)

// rangeField maps a rule field to an upstream Min/Max parameter pair.
type rangeField struct {
	min, max string
}

// Fields with a direct single-parameter mapping. Parameter casing matters
// to the upstream.
var scalarFields = map[string]string{
	"OfficialRating":    "OfficialRatings",
	"Genres":            "Genres",
	"Tags":              "Tags",
	"Studios":           "Studios",
	"VideoRange":        "VideoTypes",
	"Container":         "Containers",
	"NameStartsWith":    "NameStartsWith",
	"SeriesStatus":      "SeriesStatus",
	"IsMovie":           "IsMovie",
	"IsSeries":          "IsSeries",
	"IsPlayed":          "IsPlayed",
	"IsUnplayed":        "IsUnplayed",
	"HasSubtitles":      "HasSubtitles",
	"HasOfficialRating": "HasOfficialRating",
	"ProviderIds.Tmdb":  "HasTmdbId",
	"ProviderIds.Imdb":  "HasImdbId",
}

var rangeFields = map[string]rangeField{
	"CommunityRating": {min: "MinCommunityRating", max: "MaxCommunityRating"},
	"CriticRating":    {min: "MinCriticRating", max: "MaxCriticRating"},
	"ProductionYear":  {min: "MinPremiereDate", max: "MaxPremiereDate"},
}

// Translate converts an ordered rule list into native upstream query
// parameters plus the residual rules the upstream cannot express.
// Translation never fails: an unmappable rule becomes residual.
func Translate(rules []models.FilterRule) (map[string]string, []models.FilterRule) {
	native := make(map[string]string)
	var residual []models.FilterRule

	for _, rule := range rules {
		if translateRule(rule, native) {
			continue
		}
		logging.Debug().
			Str("field", rule.Field).
			Str("operator", rule.Operator).
			Str("value", rule.Value).
			Msg("Rule has no native mapping, deferring to post-filter")
		residual = append(residual, rule)
	}
	return native, residual
}

func translateRule(rule models.FilterRule, native map[string]string) bool {
	switch rule.Operator {
	case models.OpIsNotEmpty, models.OpIsEmpty:
		// Emptiness checks only translate when the native mapping is
		// itself an existence flag.
		param, ok := scalarFields[rule.Field]
		if !ok || !strings.HasPrefix(param, "Has") {
			return false
		}
		if rule.Operator == models.OpIsNotEmpty {
			native[param] = "true"
		} else {
			native[param] = "false"
		}
		return true
	}

	if rf, ok := rangeFields[rule.Field]; ok {
		return translateRange(rule, rf, native)
	}

	if param, ok := scalarFields[rule.Field]; ok {
		native[param] = rule.Value
		return true
	}
	return false
}

func translateRange(rule models.FilterRule, rf rangeField, native map[string]string) bool {
	year := rule.Field == "ProductionYear"

	switch rule.Operator {
	case models.OpGreaterThan:
		if year {
			native[rf.min] = yearStart(rule.Value)
		} else {
			native[rf.min] = rule.Value
		}
	case models.OpLessThan:
		if year {
			native[rf.max] = yearEnd(rule.Value)
		} else {
			native[rf.max] = rule.Value
		}
	case models.OpEquals:
		if year {
			native[rf.min] = yearStart(rule.Value)
			native[rf.max] = yearEnd(rule.Value)
		} else {
			native[rf.min] = rule.Value
			native[rf.max] = rule.Value
		}
	default:
		return false
	}
	return true
}

// Production year constraints translate to premiere-date bounds spanning
// the full year.
func yearStart(year string) string {
	return fmt.Sprintf("%s-01-01T00:00:00.000Z", year)
}

func yearEnd(year string) string {
	return fmt.Sprintf("%s-12-31T23:59:59.999Z", year)
}
