// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

/*
interceptor.go - The interceptor chain

Every proxied request walks a fixed-order chain. Each interceptor either
claims the request (writes the response, returns true) or declines and
the next one looks at it; the streaming forwarder is the terminal
fallback. GET responses produced by interceptors are cached when the
response cache is enabled; forwarded streams never are.
*/

package proxy

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/prism-media/prism/internal/cache"
	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
)

// maxCacheBody bounds how large a response body the cache will hold.
const maxCacheBody = 8 << 20

// Interceptor inspects a request and either handles it fully or declines.
type Interceptor interface {
	Name() string
	Intercept(w http.ResponseWriter, r *http.Request) bool
}

// Chain runs the interceptors in priority order with response caching
// wrapped around them.
type Chain struct {
	store        *config.Store
	respCache    *cache.TTLCache[cache.Response]
	interceptors []Interceptor
	forwarder    *Forwarder
}

// NewChain assembles the chain. Order of interceptors is the dispatch
// order.
func NewChain(store *config.Store, respCache *cache.TTLCache[cache.Response], forwarder *Forwarder, interceptors ...Interceptor) *Chain {
	return &Chain{
		store:        store,
		respCache:    respCache,
		interceptors: interceptors,
		forwarder:    forwarder,
	}
}

func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := c.store.Snapshot()

	if cfg.Cache.Enabled && r.Method == http.MethodGet {
		key := cache.RequestKey(cacheUserID(r), r.URL.Path, r.URL.Query())
		if resp, ok := c.respCache.Get(key); ok {
			metrics.CacheHits.Inc()
			logging.Ctx(r.Context()).Debug().Str("key", key).Msg("Cache hit")
			replay(w, resp)
			return
		}
		metrics.CacheMisses.Inc()

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		for _, ic := range c.interceptors {
			if ic.Intercept(rec, r) {
				if rec.cacheable() {
					c.respCache.Add(key, cache.Response{
						Body:   append([]byte(nil), rec.buf.Bytes()...),
						Status: rec.status,
						Header: cache.CloneHeader(rec.Header()),
					})
					metrics.CacheEntries.Set(float64(c.respCache.Len()))
				}
				return
			}
		}
		c.forwarder.Forward(w, r)
		return
	}

	for _, ic := range c.interceptors {
		if ic.Intercept(w, r) {
			return
		}
	}
	c.forwarder.Forward(w, r)
}

// cacheUserID resolves the identity component of the cache key. Requests
// without any user context share the "public" segment.
func cacheUserID(r *http.Request) string {
	if uid := r.URL.Query().Get("UserId"); uid != "" {
		return uid
	}
	if uid := pathSegmentAfter(r.URL.Path, "Users"); uid != "" {
		return uid
	}
	return "public"
}

func replay(w http.ResponseWriter, resp cache.Response) {
	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// recorder tees an interceptor's response into a buffer so it can be
// cached after the fact. Oversized bodies opt out silently.
type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	tooBig bool
}

func (rec *recorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if !rec.tooBig {
		if rec.buf.Len()+len(p) > maxCacheBody {
			rec.tooBig = true
			rec.buf.Reset()
		} else {
			rec.buf.Write(p)
		}
	}
	return rec.ResponseWriter.Write(p)
}

func (rec *recorder) cacheable() bool {
	return rec.status == http.StatusOK &&
		!rec.tooBig &&
		rec.buf.Len() > 0 &&
		strings.Contains(rec.Header().Get("Content-Type"), "application/json")
}
