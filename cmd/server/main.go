// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

// Package main is the entry point for the Prism proxy server.
//
// Prism sits between media clients and an Emby-compatible server and
// synthesizes "virtual libraries": filtered, merged, or feed-driven
// views that behave like real libraries, complete with generated cover
// art. Everything the upstream can already do passes through untouched.
//
// Startup order:
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. Logging: zerolog per the logging section
//  3. Local stores: DuckDB RSS rows, Badger metadata cache
//  4. Collaborators: upstream client, TMDB client, RSS resolver,
//     cover generator, response caches
//  5. Supervisor tree: HTTP server, metadata hydrator, cache janitor
//
// Shutdown on SIGINT/SIGTERM drains in-flight requests before closing
// the stores.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prism-media/prism/internal/cache"
	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/poster"
	"github.com/prism-media/prism/internal/proxy"
	"github.com/prism-media/prism/internal/rsshub"
	"github.com/prism-media/prism/internal/supervisor"
	"github.com/prism-media/prism/internal/tmdb"
	"github.com/prism-media/prism/internal/upstream"
)

func main() {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("config", cfgPath).
		Str("upstream", cfg.Upstream.URL).
		Int("libraries", len(cfg.VirtualLibraries)).
		Bool("auth", cfg.Auth.Enabled).
		Msg("Starting Prism")

	store := config.NewStore(cfg, cfgPath)

	rssStore, err := rsshub.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open RSS store")
	}
	defer func() {
		if err := rssStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing RSS store")
		}
	}()

	metadata, err := rsshub.OpenMetadataCache(cfg.Database.MetadataPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.MetadataPath).Msg("Failed to open metadata cache")
	}
	defer func() {
		if err := metadata.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing metadata cache")
		}
	}()

	upstreamClient := upstream.NewClient(cfg.Upstream)
	tmdbClient := tmdb.NewClient(cfg.TMDB)
	resolver := rsshub.NewResolver(rssStore, metadata, upstreamClient)
	generator := poster.NewGenerator(store, poster.NewRegistry())

	respCache := cache.NewResponseCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	itemsCache := cache.New[[]models.Item](cfg.Cache.LibraryItemsCapacity, 0)

	server := proxy.NewServer(proxy.Options{
		Store:      store,
		Upstream:   upstreamClient,
		TMDB:       tmdbClient,
		RSS:        resolver,
		RSSStore:   rssStore,
		Poster:     generator,
		RespCache:  respCache,
		ItemsCache: itemsCache,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(supervisor.NewServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddWorkerService(rsshub.NewHydrator(rssStore, metadata, tmdbClient))
	tree.AddWorkerService(supervisor.NewJanitorService(cfg.Cache.TTL, respCache))

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor tree stopped")
		}
	}
	logging.Info().Msg("Prism stopped")
}
