// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
gate.go - Access control gate

The gate sits in front of the interceptor chain. A client address that
authenticates once (API key, cookie, or login form) is trusted for the
configured TTL and skips credential checks on subsequent requests.
*/

package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/prism-media/prism/internal/cache"
	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
)

const (
	// CookieName is the browser session cookie carrying the password hash.
	CookieName = "emby_proxy_auth"
	// LoginPath serves the password form.
	LoginPath = "/auth/login"
	// VerifyPath accepts the submitted form.
	VerifyPath = "/auth/verify"

	trustCacheCapacity = 1024
)

// Decision is the gate's verdict for a request.
type Decision int

const (
	// Allow lets the request proceed to the interceptor chain.
	Allow Decision = iota
	// RedirectToLogin sends a browser to the login form.
	RedirectToLogin
	// Unauthorized denies the request with a 401.
	Unauthorized
)

// Gate evaluates access control for every inbound request.
type Gate struct {
	store   *config.Store
	trusted *cache.TTLCache[struct{}]
	events  *logging.AuthLogger
}

// NewGate builds the gate with a trust cache sized for the configured TTL.
func NewGate(store *config.Store) *Gate {
	cfg := store.Snapshot()
	return &Gate{
		store:   store,
		trusted: cache.New[struct{}](trustCacheCapacity, cfg.Auth.TrustTTL),
		events:  logging.NewAuthLogger(),
	}
}

// Trust marks a client address as authenticated for the trust TTL.
func (g *Gate) Trust(clientIP string) {
	g.trusted.Add(clientIP, struct{}{})
}

// Trusted reports whether a client address is currently trusted.
func (g *Gate) Trusted(clientIP string) bool {
	return g.trusted.Contains(clientIP)
}

// Check applies the access rules in order and returns the verdict.
func (g *Gate) Check(r *http.Request) Decision {
	cfg := g.store.Snapshot()
	if !cfg.Auth.Enabled {
		return Allow
	}

	clientIP := ClientIP(r)
	if g.trusted.Contains(clientIP) {
		return Allow
	}

	password := cfg.Auth.Password
	keys := cfg.Auth.AuthorizedKeys
	if password == "" && len(keys) == 0 {
		return Allow
	}

	apiKey := r.Header.Get("X-Emby-Token")
	if apiKey == "" {
		apiKey = r.URL.Query().Get("api_key")
	}
	if apiKey != "" && containsKey(keys, apiKey) {
		g.grant(r, clientIP, "api_key")
		return Allow
	}

	if password != "" {
		if c, err := r.Cookie(CookieName); err == nil && VerifyCookie(c.Value, password, cfg.Auth.Salt) {
			g.grant(r, clientIP, "cookie")
			return Allow
		}
	}

	// The login flow itself must stay reachable.
	if strings.HasPrefix(r.URL.Path, "/auth/") {
		return Allow
	}

	metrics.AuthDecisions.WithLabelValues("denied").Inc()
	g.events.LogEvent(logging.AuthEvent{
		Event:     "access_denied",
		IPAddress: clientIP,
		Path:      r.URL.Path,
		UserAgent: r.UserAgent(),
		Success:   false,
	})

	if password != "" && strings.Contains(r.Header.Get("Accept"), "html") {
		return RedirectToLogin
	}
	return Unauthorized
}

// Middleware enforces the gate's verdict around the wrapped handler.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch g.Check(r) {
		case Allow:
			next.ServeHTTP(w, r)
		case RedirectToLogin:
			http.Redirect(w, r, LoginPath, http.StatusFound)
		default:
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	})
}

func (g *Gate) grant(r *http.Request, clientIP, method string) {
	g.trusted.Add(clientIP, struct{}{})
	metrics.AuthDecisions.WithLabelValues("granted").Inc()
	g.events.LogEvent(logging.AuthEvent{
		Event:     "access_granted_" + method,
		IPAddress: clientIP,
		Path:      r.URL.Path,
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// ClientIP extracts the remote address without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
