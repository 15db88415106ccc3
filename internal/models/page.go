// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package models

// ItemsPage is the upstream's paged listing envelope. StartIndex is a
// pointer so pages synthesized without an offset omit the field, matching
// upstream responses.
type ItemsPage struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
	StartIndex       *int   `json:"StartIndex,omitempty"`
}

// NewItemsPage builds a page over the given items with the count set to the
// item total.
func NewItemsPage(items []Item) *ItemsPage {
	if items == nil {
		items = []Item{}
	}
	return &ItemsPage{Items: items, TotalRecordCount: len(items)}
}

// Slice returns the [offset, offset+limit) window of items. A limit of
// zero or less means "to the end". Out-of-range offsets yield an empty,
// non-nil slice so the page still serializes as an empty JSON array.
func (p *ItemsPage) Slice(offset, limit int) []Item {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(p.Items) {
		return []Item{}
	}
	end := len(p.Items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return p.Items[offset:end]
}
