// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package supervisor

import (
	"context"
	"time"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/proxy"
)

// ServerService adapts the HTTP server to the suture service contract.
type ServerService struct {
	server          *proxy.Server
	shutdownTimeout time.Duration
}

func NewServerService(server *proxy.Server, shutdownTimeout time.Duration) *ServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &ServerService{server: server, shutdownTimeout: shutdownTimeout}
}

func (s *ServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	<-errCh
	return ctx.Err()
}

func (s *ServerService) String() string { return "http-server" }

// Cleaner is anything with expirable entries the janitor can sweep.
type Cleaner interface {
	CleanupExpired() int
}

// JanitorService periodically evicts expired cache entries so memory is
// reclaimed even for keys that are never read again.
type JanitorService struct {
	interval time.Duration
	cleaners []Cleaner
}

func NewJanitorService(interval time.Duration, cleaners ...Cleaner) *JanitorService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &JanitorService{interval: interval, cleaners: cleaners}
}

func (j *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := 0
			for _, c := range j.cleaners {
				removed += c.CleanupExpired()
			}
			if removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Cache janitor sweep")
			}
		}
	}
}

func (j *JanitorService) String() string { return "cache-janitor" }
