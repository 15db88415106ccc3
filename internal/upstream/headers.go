// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package upstream

import "net/http"

// forwardable lists the client request headers that are safe to relay on
// sub-requests made on the client's behalf. Hop-by-hop headers and Host
// stay out so the upstream sees a clean request.
var forwardable = map[string]struct{}{
	"accept":                {},
	"accept-language":       {},
	"user-agent":            {},
	"x-emby-authorization":  {},
	"x-emby-client":         {},
	"x-emby-device-name":    {},
	"x-emby-device-id":      {},
	"x-emby-client-version": {},
	"x-emby-language":       {},
	"x-emby-token":          {},
}

// ForwardHeaders copies the whitelisted subset of a client's headers for
// reuse on upstream sub-requests.
func ForwardHeaders(h http.Header) http.Header {
	out := make(http.Header, len(forwardable))
	for k, vals := range h {
		if _, ok := forwardable[lowerKey(k)]; !ok {
			continue
		}
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vals...)
	}
	return out
}

// StripHostHeaders copies all headers except Host and connection-scoped
// ones, for handlers that replay the client request wholesale.
func StripHostHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vals := range h {
		switch http.CanonicalHeaderKey(k) {
		case "Host", "Connection", "Upgrade", "Proxy-Connection", "Keep-Alive", "Transfer-Encoding", "Te", "Trailer":
			continue
		}
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vals...)
	}
	return out
}

func lowerKey(k string) string {
	b := []byte(k)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
