// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/models"
)

// pathSegmentAfter returns the path segment immediately following the
// first segment equal to marker, or "".
func pathSegmentAfter(path, marker string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if s == marker && i+1 < len(segs) {
			return segs[i+1]
		}
	}
	return ""
}

// requestUserID resolves the acting user from the UserId query parameter
// or the /Users/{id}/ path segment.
func requestUserID(r *http.Request) string {
	if uid := r.URL.Query().Get("UserId"); uid != "" {
		return uid
	}
	return pathSegmentAfter(r.URL.Path, "Users")
}

// inheritParams copies whitelisted client parameters into a fresh value
// set. Multi-valued keys keep only the first value, matching how the
// upstream treats repeats.
func inheritParams(query url.Values, allowed []string) url.Values {
	out := url.Values{}
	for _, key := range allowed {
		if v := query.Get(key); v != "" {
			out.Set(key, v)
		}
	}
	return out
}

// mergeFields unions required item fields into an existing Fields
// parameter value, preserving the client's entries first.
func mergeFields(existing string, required []string) string {
	seen := map[string]struct{}{}
	var out []string
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f == "" {
			return
		}
		if _, dup := seen[f]; dup {
			return
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	for _, f := range strings.Split(existing, ",") {
		add(f)
	}
	for _, f := range required {
		add(f)
	}
	return strings.Join(out, ",")
}

// authTokenParams extracts the client's X-Emby-Token query parameter for
// sub-requests that must carry only the token.
func authTokenParams(query url.Values) url.Values {
	out := url.Values{}
	if tok := query.Get("X-Emby-Token"); tok != "" {
		out.Set("X-Emby-Token", tok)
	}
	return out
}

// requestToken pulls the API token from the query parameter or header.
func requestToken(r *http.Request) string {
	if tok := r.URL.Query().Get("X-Emby-Token"); tok != "" {
		return tok
	}
	return r.Header.Get("X-Emby-Token")
}

// clientPaging reads StartIndex and Limit with the given defaults.
func clientPaging(query url.Values, defaultStart, defaultLimit int) (int, int) {
	start := defaultStart
	if v := query.Get("StartIndex"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	limit := defaultLimit
	if v := query.Get("Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	return start, limit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeItemsPage(w http.ResponseWriter, page *models.ItemsPage) {
	writeJSON(w, http.StatusOK, page)
}

// stringID renders an upstream identifier that may arrive as a string or
// a JSON number.
func stringID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// idList extracts stringified ids from a list of scalars or of objects
// carrying an Id key.
func idList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			if id := stringID(m["Id"]); id != "" {
				out = append(out, id)
			}
			continue
		}
		if id := stringID(entry); id != "" {
			out = append(out, id)
		}
	}
	return out
}
