// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prism-media/prism/internal/api"
	"github.com/prism-media/prism/internal/auth"
	"github.com/prism-media/prism/internal/cache"
	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/middleware"
	"github.com/prism-media/prism/internal/models"
	"github.com/prism-media/prism/internal/poster"
	"github.com/prism-media/prism/internal/rsshub"
	"github.com/prism-media/prism/internal/tmdb"
	"github.com/prism-media/prism/internal/upstream"
)

// Options collects the collaborators the server wires together.
type Options struct {
	Store      *config.Store
	Upstream   *upstream.Client
	TMDB       *tmdb.Client
	RSS        *rsshub.Resolver
	RSSStore   *rsshub.Store
	Poster     *poster.Generator
	RespCache  *cache.TTLCache[cache.Response]
	ItemsCache *cache.TTLCache[[]models.Item]
}

// Server is the proxy's HTTP front. Everything except the login page,
// the metrics endpoint and static covers goes through the access gate
// and then either the WebSocket relay or the interceptor chain.
type Server struct {
	store      *config.Store
	httpServer *http.Server
	chain      *Chain
	relay      *WebSocketRelay
	itemsCache *cache.TTLCache[[]models.Item]
}

func NewServer(opts Options) *Server {
	cfg := opts.Store.Snapshot()
	opts.Poster.SetSelfURL(fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port))

	views := NewViewsInterceptor(opts.Store, opts.Upstream, opts.Poster)
	chain := NewChain(opts.Store, opts.RespCache, NewForwarder(opts.Upstream),
		NewImageInterceptor(opts.Store, opts.Poster),
		NewVirtualItemInterceptor(opts.Store),
		NewLatestInterceptor(opts.Store, opts.Upstream, opts.RSS, opts.Poster),
		NewSystemInfoInterceptor(opts.Store, opts.Upstream),
		NewEpisodesInterceptor(opts.Store, opts.Upstream, opts.TMDB),
		NewSeasonsInterceptor(opts.Store, opts.Upstream),
		NewListingInterceptor(opts.Store, opts.Upstream, opts.RSS, views, opts.ItemsCache),
		views,
	)

	s := &Server{
		store:      opts.Store,
		chain:      chain,
		relay:      NewWebSocketRelay(opts.Upstream),
		itemsCache: opts.ItemsCache,
	}

	gate := auth.NewGate(opts.Store)
	authHandler := auth.NewHandler(opts.Store, gate)
	adminAPI := api.NewHandler(opts.Store, opts.RSSStore, opts.Poster, opts.ItemsCache)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Group(func(r chi.Router) {
		r.Handle("/metrics", promhttp.Handler())
		authHandler.Routes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)

		if info, err := os.Stat(cfg.Covers.Dir); err == nil && info.IsDir() {
			r.Handle("/covers/*", http.StripPrefix("/covers/", http.FileServer(http.Dir(cfg.Covers.Dir))))
		}
		r.Get("/api/internal/get-cached-items/{library_id}", s.handleCachedItems)
		r.Route("/api/v1", func(r chi.Router) {
			if len(cfg.Server.CORSOrigins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins:   cfg.Server.CORSOrigins,
					AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
					AllowedHeaders:   []string{"Accept", "Content-Type", "X-Emby-Token"},
					AllowCredentials: true,
					MaxAge:           300,
				}))
			}
			adminAPI.Routes(r)
		})

		proxyHandler := middleware.Prometheus("proxy")(http.HandlerFunc(s.handleProxy))
		r.Handle("/*", proxyHandler)
		r.Handle("/", proxyHandler)
	})

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// Streaming responses forbid a write timeout.
		IdleTimeout: 2 * time.Minute,
	}
	return s
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if IsWebSocketRequest(r) {
		s.relay.ServeHTTP(w, r)
		return
	}
	s.chain.ServeHTTP(w, r)
}

// handleCachedItems exposes the last listing page of a virtual library
// to the cover generator, which runs through the proxy itself.
func (s *Server) handleCachedItems(w http.ResponseWriter, r *http.Request) {
	libID := chi.URLParam(r, "library_id")
	items, ok := s.itemsCache.Get(libID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"detail": "No cached items for library " + libID,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"Items": items})
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.httpServer.Addr).Msg("Proxy server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
