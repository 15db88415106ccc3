// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package proxy

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/metrics"
	"github.com/prism-media/prism/internal/upstream"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The gate already vetted the request; origin checks would only
	// break native clients.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handshakeHeaders are managed by the WebSocket libraries on both legs
// and must not be replayed.
var handshakeHeaders = map[string]struct{}{
	"host":                     {},
	"connection":               {},
	"upgrade":                  {},
	"sec-websocket-key":        {},
	"sec-websocket-version":    {},
	"sec-websocket-extensions": {},
}

// WebSocketRelay bridges a client socket to the upstream's socket,
// relaying frames in both directions until either side closes.
type WebSocketRelay struct {
	upstream *upstream.Client
}

func NewWebSocketRelay(client *upstream.Client) *WebSocketRelay {
	return &WebSocketRelay{upstream: client}
}

// IsWebSocketRequest reports whether a request is a socket upgrade.
func IsWebSocketRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

func (rel *WebSocketRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, err := rel.upstream.WebSocketURL(r.URL.Path, r.URL.RawQuery)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	hdr := http.Header{}
	for k, vals := range r.Header {
		if _, skip := handshakeHeaders[lowered(k)]; skip {
			continue
		}
		for _, v := range vals {
			hdr.Add(k, v)
		}
	}

	log := logging.Ctx(r.Context())
	serverConn, resp, err := websocket.DefaultDialer.DialContext(r.Context(), target, hdr)
	if err != nil {
		log.Error().Err(err).Str("target", target).Msg("Upstream socket dial failed")
		if resp != nil {
			resp.Body.Close()
		}
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer serverConn.Close()

	clientConn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Client socket upgrade failed")
		return
	}
	defer clientConn.Close()

	metrics.WebSocketSessions.Inc()
	defer metrics.WebSocketSessions.Dec()
	log.Debug().Str("path", r.URL.Path).Msg("WebSocket session opened")

	done := make(chan struct{}, 2)
	go relayFrames(clientConn, serverConn, done)
	go relayFrames(serverConn, clientConn, done)
	<-done
}

func relayFrames(dst, src *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		kind, payload, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}

func lowered(k string) string {
	b := []byte(k)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
