// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/prism-media/prism/internal/config"
	"github.com/prism-media/prism/internal/logging"
)

const loginPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Password Protection</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background-color: #141414; color: #fff; }
        .container { background-color: #1e1e1e; padding: 2rem; border-radius: 8px; box-shadow: 0 4px 15px rgba(0,0,0,0.5); text-align: center; }
        h1 { margin-bottom: 1.5rem; }
        input[type="password"] { width: 80%; padding: 0.8rem; margin-bottom: 1.5rem; border: 1px solid #444; border-radius: 4px; background-color: #333; color: #fff; font-size: 1rem; }
        button { padding: 0.8rem 1.5rem; border: none; border-radius: 4px; background-color: #00a4dc; color: #fff; font-size: 1rem; cursor: pointer; transition: background-color 0.2s; }
        button:hover { background-color: #007b9e; }
        .error { color: #e50914; margin-top: 1rem; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Enter Password</h1>
        <form action="/auth/verify" method="post">
            <input type="password" name="password" placeholder="Password" required>
            <br>
            <button type="submit">Sign In</button>
        </form>
    </div>
</body>
</html>
`

// Handler serves the login page and verifies submitted passwords.
type Handler struct {
	store *config.Store
	gate  *Gate
}

// NewHandler wires the login endpoints to the gate's trust cache.
func NewHandler(store *config.Store, gate *Gate) *Handler {
	return &Handler{store: store, gate: gate}
}

// Routes mounts the login endpoints. The verify endpoint is rate limited
// per client address when a limit is configured.
func (h *Handler) Routes(r chi.Router) {
	cfg := h.store.Snapshot()
	r.Get(LoginPath, h.handleLoginPage)
	if cfg.Auth.LoginRateLimit > 0 {
		r.With(httprate.LimitByIP(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow)).
			Post(VerifyPath, h.handleVerify)
	} else {
		r.Post(VerifyPath, h.handleVerify)
	}
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loginPage))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	cfg := h.store.Snapshot()
	submitted := r.PostFormValue("password")
	clientIP := ClientIP(r)

	if submitted == "" || cfg.Auth.Password == "" || submitted != cfg.Auth.Password {
		logging.Warn().Str("client_ip", clientIP).Msg("Incorrect password submitted")
		http.Redirect(w, r, LoginPath+"?error=1", http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    HashPassword(cfg.Auth.Password, cfg.Auth.Salt),
		Path:     "/",
		MaxAge:   int(cfg.Auth.CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.gate.Trust(clientIP)
	logging.Info().Str("client_ip", clientIP).Msg("Password accepted, trusting client")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
