// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
store.go - RSS lookup table

Holds the rows the feed-ingestion pipeline writes: one row per external
title subscribed into an RSS-backed virtual library, with the resolved
catalog id filled in once the title appears upstream. The request path
only reads this table; row writing stays with the ingestion pipeline.
*/

package rsshub

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/prism-media/prism/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS rss_library_items (
    library_id   VARCHAR NOT NULL,
    tmdb_id      VARCHAR NOT NULL,
    media_type   VARCHAR NOT NULL,
    emby_item_id VARCHAR,
    created_at   TIMESTAMP NOT NULL DEFAULT current_timestamp
);
CREATE INDEX IF NOT EXISTS idx_rss_library_items_library
    ON rss_library_items (library_id);
`

// Row is one lookup entry of an RSS-backed virtual library.
type Row struct {
	LibraryID  string
	TmdbID     string
	MediaType  string
	EmbyItemID string
	CreatedAt  time.Time
}

// Resolved reports whether the row has been matched to a catalog item.
func (r Row) Resolved() bool {
	return r.EmbyItemID != ""
}

// Store reads the RSS lookup table.
type Store struct {
	db *sql.DB
}

// Open opens the lookup database and ensures the schema exists.
func Open(path string) (*Store, error) {
	connStr := fmt.Sprintf("%s?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false", path)
	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open rss database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize rss schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("RSS lookup database opened")
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ItemsForLibrary returns the library's rows in insertion order.
func (s *Store) ItemsForLibrary(ctx context.Context, libraryID string) ([]Row, error) {
	return s.query(ctx,
		`SELECT library_id, tmdb_id, media_type, COALESCE(emby_item_id, ''), created_at
		 FROM rss_library_items WHERE library_id = ? ORDER BY created_at ASC`,
		libraryID)
}

// LatestForLibrary returns the library's newest rows first, capped at limit.
func (s *Store) LatestForLibrary(ctx context.Context, libraryID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx,
		`SELECT library_id, tmdb_id, media_type, COALESCE(emby_item_id, ''), created_at
		 FROM rss_library_items WHERE library_id = ? ORDER BY created_at DESC LIMIT ?`,
		libraryID, limit)
}

// UnresolvedRows returns every row across all libraries that lacks a
// resolved catalog id. Used by the metadata hydrator.
func (s *Store) UnresolvedRows(ctx context.Context) ([]Row, error) {
	return s.query(ctx,
		`SELECT library_id, tmdb_id, media_type, COALESCE(emby_item_id, ''), created_at
		 FROM rss_library_items WHERE emby_item_id IS NULL OR emby_item_id = ''
		 ORDER BY created_at ASC`)
}

// DeleteLibrary removes all rows belonging to a deleted virtual library.
func (s *Store) DeleteLibrary(ctx context.Context, libraryID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rss_library_items WHERE library_id = ?`, libraryID); err != nil {
		return fmt.Errorf("failed to delete rss rows for library %s: %w", libraryID, err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("rss query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.LibraryID, &r.TmdbID, &r.MediaType, &r.EmbyItemID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("rss row scan failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rss row iteration failed: %w", err)
	}
	return out, nil
}
