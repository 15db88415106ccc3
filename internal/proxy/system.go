// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/upstream"
)

// SystemInfoInterceptor rewrites the upstream's self-reported address in
// System/Info responses so clients keep talking to the proxy.
type SystemInfoInterceptor struct {
	store    *config.Store
	upstream *upstream.Client
}

func NewSystemInfoInterceptor(store *config.Store, client *upstream.Client) *SystemInfoInterceptor {
	return &SystemInfoInterceptor{store: store, upstream: client}
}

func (ic *SystemInfoInterceptor) Name() string { return "system-info" }

func (ic *SystemInfoInterceptor) Intercept(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if !strings.Contains(r.URL.Path, "/System/Info") &&
		!strings.Contains(strings.ToLower(r.URL.Path), "/system/info/public") {
		return false
	}

	hdr := upstream.StripHostHeaders(r.Header)
	resp, err := ic.upstream.Do(r.Context(), http.MethodGet, r.URL.Path, r.URL.RawQuery, hdr, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("System info fetch failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("System info read failed")
		return false
	}

	rewritten := strings.ReplaceAll(string(body), ic.upstream.BaseURL(), ic.publicURL(r))

	for k, vals := range upstream.StripHostHeaders(resp.Header) {
		switch strings.ToLower(k) {
		case "content-length", "content-encoding":
			continue
		}
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rewritten)
	return true
}

func (ic *SystemInfoInterceptor) publicURL(r *http.Request) string {
	if pub := ic.store.Snapshot().Server.PublicURL; pub != "" {
		return strings.TrimRight(pub, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
