// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package cache

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Response is a cached proxied response: the full body plus enough of the
// envelope to replay it byte-identically.
type Response struct {
	Body   []byte
	Status int
	Header http.Header
}

// credentialParams are stripped from the cache key so two sessions of the
// same user share entries regardless of token value.
var credentialParams = map[string]struct{}{
	"x-emby-token": {},
	"api_key":      {},
}

// RequestKey builds the response-cache key for a request. The key covers
// the resolved user identity, the path, and the query parameters sorted by
// name with credential tokens removed, so parameter order and token churn
// never fragment the cache.
func RequestKey(userID, path string, query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if _, cred := credentialParams[strings.ToLower(k)]; cred {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("user:")
	b.WriteString(userID)
	b.WriteString(":path:")
	b.WriteString(path)
	b.WriteString(":params:")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(vals, ","))
	}
	return b.String()
}

// NewResponseCache creates the bounded response cache used for GET
// listings.
func NewResponseCache(capacity int, ttl time.Duration) *TTLCache[Response] {
	return New[Response](capacity, ttl)
}

// CloneHeader deep-copies a header map so a cached response cannot be
// mutated through a served copy.
func CloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}
