// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/prism-media/prism/internal/config"
)

func testStore(t *testing.T, mutate func(*config.Config)) *config.Store {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return config.NewStore(cfg, filepath.Join(t.TempDir(), "config.yaml"))
}

func newRequest(method, target, remoteAddr string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = remoteAddr
	return r
}

func TestGateDisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	g := NewGate(testStore(t, nil))
	if d := g.Check(newRequest(http.MethodGet, "/emby/Users/u1/Items", "10.0.0.1:1234")); d != Allow {
		t.Errorf("decision = %v, want Allow", d)
	}
}

func TestGateNoCredentialsConfigured(t *testing.T) {
	t.Parallel()

	g := NewGate(testStore(t, func(c *config.Config) {
		c.Auth.Enabled = true
	}))
	if d := g.Check(newRequest(http.MethodGet, "/emby/System/Info", "10.0.0.1:1234")); d != Allow {
		t.Errorf("decision = %v, want Allow when nothing is configured", d)
	}
}

func TestGateAuthorizedAPIKeyTrustsClient(t *testing.T) {
	t.Parallel()

	g := NewGate(testStore(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.AuthorizedKeys = []string{"good-key"}
	}))

	r := newRequest(http.MethodGet, "/emby/Users/u1/Items", "10.0.0.2:555")
	r.Header.Set("X-Emby-Token", "good-key")
	if d := g.Check(r); d != Allow {
		t.Fatalf("decision = %v, want Allow for whitelisted key", d)
	}

	// Subsequent request from the same address needs no credential.
	bare := newRequest(http.MethodGet, "/emby/Users/u1/Items", "10.0.0.2:556")
	if d := g.Check(bare); d != Allow {
		t.Errorf("decision = %v, want Allow for trusted address", d)
	}
}

func TestGateAPIKeyViaQueryParam(t *testing.T) {
	t.Parallel()

	g := NewGate(testStore(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.AuthorizedKeys = []string{"qkey"}
	}))

	r := newRequest(http.MethodGet, "/emby/Users/u1/Items?api_key=qkey", "10.0.0.3:555")
	if d := g.Check(r); d != Allow {
		t.Errorf("decision = %v, want Allow", d)
	}
}

func TestGateValidCookie(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.Password = "s3cret"
	})
	g := NewGate(store)

	cfg := store.Snapshot()
	r := newRequest(http.MethodGet, "/web/index.html", "10.0.0.4:555")
	r.AddCookie(&http.Cookie{Name: CookieName, Value: HashPassword("s3cret", cfg.Auth.Salt)})
	if d := g.Check(r); d != Allow {
		t.Errorf("decision = %v, want Allow for valid cookie", d)
	}

	bad := newRequest(http.MethodGet, "/web/index.html", "10.0.0.5:555")
	bad.AddCookie(&http.Cookie{Name: CookieName, Value: "wrong"})
	if d := g.Check(bad); d == Allow {
		t.Error("forged cookie was allowed")
	}
}

func TestGateLoginPathsExempt(t *testing.T) {
	t.Parallel()

	g := NewGate(testStore(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.Password = "pw"
	}))
	if d := g.Check(newRequest(http.MethodGet, LoginPath, "10.0.0.6:1")); d != Allow {
		t.Errorf("login page blocked: %v", d)
	}
	if d := g.Check(newRequest(http.MethodPost, VerifyPath, "10.0.0.6:1")); d != Allow {
		t.Errorf("verify endpoint blocked: %v", d)
	}
}

func TestGateUnauthenticatedVerdicts(t *testing.T) {
	t.Parallel()

	g := NewGate(testStore(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.Password = "pw"
	}))

	browser := newRequest(http.MethodGet, "/web/index.html", "10.0.0.7:1")
	browser.Header.Set("Accept", "text/html,application/xhtml+xml")
	if d := g.Check(browser); d != RedirectToLogin {
		t.Errorf("browser decision = %v, want RedirectToLogin", d)
	}

	api := newRequest(http.MethodGet, "/emby/Users/u1/Items", "10.0.0.8:1")
	api.Header.Set("Accept", "application/json")
	if d := g.Check(api); d != Unauthorized {
		t.Errorf("api decision = %v, want Unauthorized", d)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	t.Parallel()

	store := testStore(t, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.Password = "correct-horse"
	})
	g := NewGate(store)
	h := NewHandler(store, g)

	router := chi.NewRouter()
	h.Routes(router)

	t.Run("correct password sets cookie and trusts", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, VerifyPath, nil)
		req.RemoteAddr = "10.1.0.1:9999"
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.PostForm = map[string][]string{"password": {"correct-horse"}}
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusSeeOther {
			t.Fatalf("status = %d, want 303", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "/" {
			t.Errorf("Location = %q, want /", loc)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != CookieName || !cookies[0].HttpOnly {
			t.Fatalf("unexpected cookies %+v", cookies)
		}
		cfg := store.Snapshot()
		if !VerifyCookie(cookies[0].Value, cfg.Auth.Password, cfg.Auth.Salt) {
			t.Error("cookie value does not verify")
		}
		if !g.Trusted("10.1.0.1") {
			t.Error("client address not trusted after login")
		}
	})

	t.Run("wrong password redirects with error flag", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, VerifyPath, nil)
		req.RemoteAddr = "10.1.0.2:9999"
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.PostForm = map[string][]string{"password": {"nope"}}
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusSeeOther {
			t.Fatalf("status = %d, want 303", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != LoginPath+"?error=1" {
			t.Errorf("Location = %q, want error redirect", loc)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Error("cookie set on failed login")
		}
		if g.Trusted("10.1.0.2") {
			t.Error("client trusted after failed login")
		}
	})
}

func TestHashPasswordDeterministic(t *testing.T) {
	t.Parallel()

	a := HashPassword("pw", "salt")
	b := HashPassword("pw", "salt")
	if a != b {
		t.Error("hash not deterministic")
	}
	if HashPassword("pw", "other") == a {
		t.Error("salt not mixed into hash")
	}
	if !VerifyCookie(a, "pw", "salt") {
		t.Error("VerifyCookie rejects own derivation")
	}
}
