// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package logging

import (
	"github.com/rs/zerolog"
)

// AuthEvent describes an access-gate decision for audit logging.
type AuthEvent struct {
	// Event is the decision type: "login_success", "login_failure",
	// "ip_trusted", "access_denied".
	Event string
	// IPAddress is the client's IP address.
	IPAddress string
	// Path is the request path that triggered the decision.
	Path string
	// UserAgent is the client's user agent, truncated for log hygiene.
	UserAgent string
	// Success indicates whether access was granted.
	Success bool
}

const maxUserAgentLen = 128

// AuthLogger logs access-gate decisions with a fixed component field.
type AuthLogger struct {
	logger zerolog.Logger
}

// NewAuthLogger creates an AuthLogger writing through the global logger.
func NewAuthLogger() *AuthLogger {
	return &AuthLogger{
		logger: With().Str("component", "auth").Logger(),
	}
}

// LogEvent records an access-gate decision. Failures are logged at warn
// level so operators can alert on repeated denials.
func (a *AuthLogger) LogEvent(ev AuthEvent) {
	ua := ev.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}

	event := a.logger.Info()
	if !ev.Success {
		event = a.logger.Warn()
	}

	event.
		Str("event", ev.Event).
		Str("ip", ev.IPAddress).
		Str("path", ev.Path).
		Str("user_agent", ua).
		Bool("success", ev.Success).
		Msg("Access gate decision")
}
