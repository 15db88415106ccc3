// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package filter

import (
	"testing"

	"github.com/prism-media/prism/internal/models"
)

func sampleItems() []models.Item {
	return []models.Item{
		{
			"Id":              "1",
			"Name":            "Spirited Away",
			"CommunityRating": 8.6,
			"Genres":          []any{"Animation", "Fantasy"},
			"ProviderIds":     map[string]any{"Tmdb": "129"},
		},
		{
			"Id":              "2",
			"Name":            "The Room",
			"CommunityRating": 3.9,
			"Genres":          []any{"Drama"},
		},
		{
			"Id":     "3",
			"Name":   "Untitled",
			"Genres": []any{},
		},
	}
}

func ids(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID()
	}
	return out
}

func TestApplyEmptyRulesReturnsInput(t *testing.T) {
	t.Parallel()

	items := sampleItems()
	got := Apply(items, nil)
	if len(got) != len(items) {
		t.Errorf("empty rule list changed the item count: %d", len(got))
	}
}

func TestApplyRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rules []models.FilterRule
		want  []string
	}{
		{
			name:  "numeric greater_than",
			rules: []models.FilterRule{{Field: "CommunityRating", Operator: models.OpGreaterThan, Value: "5"}},
			want:  []string{"1"},
		},
		{
			name:  "numeric less_than",
			rules: []models.FilterRule{{Field: "CommunityRating", Operator: models.OpLessThan, Value: "5"}},
			want:  []string{"2"},
		},
		{
			name:  "missing field fails numeric comparison",
			rules: []models.FilterRule{{Field: "CriticRating", Operator: models.OpGreaterThan, Value: "0"}},
			want:  []string{},
		},
		{
			name:  "list contains is exact membership",
			rules: []models.FilterRule{{Field: "Genres", Operator: models.OpContains, Value: "Animation"}},
			want:  []string{"1"},
		},
		{
			name:  "list not_contains",
			rules: []models.FilterRule{{Field: "Genres", Operator: models.OpNotContains, Value: "Drama"}},
			want:  []string{"1", "3"},
		},
		{
			name:  "string equals is case-insensitive",
			rules: []models.FilterRule{{Field: "Name", Operator: models.OpEquals, Value: "the room"}},
			want:  []string{"2"},
		},
		{
			name:  "string contains substring",
			rules: []models.FilterRule{{Field: "Name", Operator: models.OpContains, Value: "away"}},
			want:  []string{"1"},
		},
		{
			name:  "is_empty matches missing and empty list",
			rules: []models.FilterRule{{Field: "ProviderIds.Tmdb", Operator: models.OpIsEmpty}},
			want:  []string{"2", "3"},
		},
		{
			name:  "is_not_empty on nested provider id",
			rules: []models.FilterRule{{Field: "ProviderIds.Tmdb", Operator: models.OpIsNotEmpty}},
			want:  []string{"1"},
		},
		{
			name: "rules combine with AND",
			rules: []models.FilterRule{
				{Field: "CommunityRating", Operator: models.OpGreaterThan, Value: "3"},
				{Field: "Genres", Operator: models.OpContains, Value: "Drama"},
			},
			want: []string{"2"},
		},
		{
			name:  "non-numeric rule value fails silently",
			rules: []models.FilterRule{{Field: "CommunityRating", Operator: models.OpGreaterThan, Value: "high"}},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ids(Apply(sampleItems(), tt.rules))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestEmptinessOperatorsAreNegations(t *testing.T) {
	t.Parallel()

	items := sampleItems()
	fields := []string{"Genres", "ProviderIds.Tmdb", "CommunityRating", "Nope"}

	for _, field := range fields {
		empty := Apply(items, []models.FilterRule{{Field: field, Operator: models.OpIsEmpty}})
		notEmpty := Apply(items, []models.FilterRule{{Field: field, Operator: models.OpIsNotEmpty}})
		if len(empty)+len(notEmpty) != len(items) {
			t.Errorf("field %s: is_empty (%d) and is_not_empty (%d) do not partition %d items",
				field, len(empty), len(notEmpty), len(items))
		}
	}
}
