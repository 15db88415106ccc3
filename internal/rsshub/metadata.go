// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package rsshub

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
)

// MetadataCache stores pre-formatted placeholder items keyed by external
// id and media type. Entries are written by the hydrator and read by the
// request path; a miss on the request path means the row is skipped.
type MetadataCache struct {
	db *badger.DB
}

// OpenMetadataCache opens (or creates) the cache at the given directory.
func OpenMetadataCache(path string) (*MetadataCache, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata cache: %w", err)
	}
	logging.Info().Str("path", path).Msg("Metadata cache opened")
	return &MetadataCache{db: db}, nil
}

// Close flushes and closes the cache.
func (m *MetadataCache) Close() error {
	return m.db.Close()
}

func metadataKey(tmdbID, mediaType string) []byte {
	return []byte("tmdb:" + mediaType + ":" + tmdbID)
}

// Get returns the cached placeholder item, or false on a miss.
func (m *MetadataCache) Get(tmdbID, mediaType string) (models.Item, bool) {
	var item models.Item
	err := m.db.View(func(txn *badger.Txn) error {
		e, err := txn.Get(metadataKey(tmdbID, mediaType))
		if err != nil {
			return err
		}
		return e.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Warn().Err(err).Str("tmdb_id", tmdbID).Msg("Metadata cache read failed")
		}
		return nil, false
	}
	return item, true
}

// Put stores a placeholder item for the given external id.
func (m *MetadataCache) Put(tmdbID, mediaType string, item models.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode metadata entry: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metadataKey(tmdbID, mediaType), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write metadata entry: %w", err)
	}
	return nil
}

// Contains reports whether an entry exists without decoding it.
func (m *MetadataCache) Contains(tmdbID, mediaType string) bool {
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(metadataKey(tmdbID, mediaType))
		return err
	})
	return err == nil
}
