// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/upstream"
)

// forwardChunk is the copy-buffer size for streamed bodies.
const forwardChunk = 8192

// hopHeaders are dropped from forwarded responses so the proxy's own
// framing stays authoritative.
var hopHeaders = map[string]struct{}{
	"transfer-encoding": {},
	"connection":        {},
	"content-encoding":  {},
	"content-length":    {},
}

// Forwarder streams any unclaimed request to the upstream verbatim. It
// is the chain's terminal handler.
type Forwarder struct {
	upstream *upstream.Client
}

func NewForwarder(client *upstream.Client) *Forwarder {
	return &Forwarder{upstream: client}
}

func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request) {
	hdr := upstream.StripHostHeaders(r.Header)

	resp, err := f.upstream.Do(r.Context(), r.Method, r.URL.Path, r.URL.RawQuery, hdr, r.Body)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("Upstream forward failed")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		if _, hop := hopHeaders[strings.ToLower(k)]; hop {
			continue
		}
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	buf := make([]byte, forwardChunk)
	if _, err := io.CopyBuffer(flushWriter{w}, resp.Body, buf); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Stream closed early")
	}
}

// flushWriter flushes after every chunk so long-running streams reach
// the client promptly.
type flushWriter struct {
	w http.ResponseWriter
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fl, ok := fw.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}
