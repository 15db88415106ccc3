// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package filter

import (
	"reflect"
	"testing"

	"github.com/prism-media/prism/internal/models"
)

func TestTranslateScalarFields(t *testing.T) {
	t.Parallel()

	rules := []models.FilterRule{
		{Field: "Genres", Operator: models.OpEquals, Value: "Animation"},
		{Field: "VideoRange", Operator: models.OpEquals, Value: "HDR"},
		{Field: "OfficialRating", Operator: models.OpEquals, Value: "PG-13"},
	}

	native, residual := Translate(rules)

	want := map[string]string{
		"Genres":          "Animation",
		"VideoTypes":      "HDR",
		"OfficialRatings": "PG-13",
	}
	if !reflect.DeepEqual(native, want) {
		t.Errorf("native = %v, want %v", native, want)
	}
	if len(residual) != 0 {
		t.Errorf("residual = %v, want none", residual)
	}
}

func TestTranslateRangeFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule models.FilterRule
		want map[string]string
	}{
		{
			name: "rating greater_than",
			rule: models.FilterRule{Field: "CommunityRating", Operator: models.OpGreaterThan, Value: "7.5"},
			want: map[string]string{"MinCommunityRating": "7.5"},
		},
		{
			name: "rating less_than",
			rule: models.FilterRule{Field: "CommunityRating", Operator: models.OpLessThan, Value: "5"},
			want: map[string]string{"MaxCommunityRating": "5"},
		},
		{
			name: "rating equals pins both bounds",
			rule: models.FilterRule{Field: "CriticRating", Operator: models.OpEquals, Value: "90"},
			want: map[string]string{"MinCriticRating": "90", "MaxCriticRating": "90"},
		},
		{
			name: "year greater_than",
			rule: models.FilterRule{Field: "ProductionYear", Operator: models.OpGreaterThan, Value: "2020"},
			want: map[string]string{"MinPremiereDate": "2020-01-01T00:00:00.000Z"},
		},
		{
			name: "year equals spans the full year",
			rule: models.FilterRule{Field: "ProductionYear", Operator: models.OpEquals, Value: "1999"},
			want: map[string]string{
				"MinPremiereDate": "1999-01-01T00:00:00.000Z",
				"MaxPremiereDate": "1999-12-31T23:59:59.999Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			native, residual := Translate([]models.FilterRule{tt.rule})
			if !reflect.DeepEqual(native, tt.want) {
				t.Errorf("native = %v, want %v", native, tt.want)
			}
			if len(residual) != 0 {
				t.Errorf("residual = %v, want none", residual)
			}
		})
	}
}

func TestTranslateExistenceChecks(t *testing.T) {
	t.Parallel()

	rules := []models.FilterRule{
		{Field: "ProviderIds.Tmdb", Operator: models.OpIsNotEmpty},
		{Field: "ProviderIds.Imdb", Operator: models.OpIsEmpty},
		// Genres maps natively but not to an existence flag.
		{Field: "Genres", Operator: models.OpIsNotEmpty},
	}

	native, residual := Translate(rules)

	want := map[string]string{"HasTmdbId": "true", "HasImdbId": "false"}
	if !reflect.DeepEqual(native, want) {
		t.Errorf("native = %v, want %v", native, want)
	}
	if len(residual) != 1 || residual[0].Field != "Genres" {
		t.Errorf("residual = %v, want the Genres emptiness rule", residual)
	}
}

func TestTranslateEveryRuleLandsExactlyOnce(t *testing.T) {
	t.Parallel()

	rules := []models.FilterRule{
		{Field: "Genres", Operator: models.OpEquals, Value: "Drama"},
		{Field: "People.Name", Operator: models.OpContains, Value: "Nolan"},
		{Field: "CommunityRating", Operator: models.OpContains, Value: "8"},
		{Field: "Unknown", Operator: models.OpEquals, Value: "x"},
	}

	native, residual := Translate(rules)

	// One rule translated, three residual; nothing lost or doubled.
	if len(native) != 1 {
		t.Errorf("native = %v, want one parameter", native)
	}
	if len(residual) != 3 {
		t.Errorf("residual count = %d, want 3", len(residual))
	}
}
