// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashIterations = 4096
	hashKeyLen     = 32
)

// HashPassword derives the session cookie value from the configured
// password and salt. The derivation is deterministic so a presented
// cookie can be compared against a fresh derivation.
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, hashKeyLen, sha256.New)
	return hex.EncodeToString(key)
}

// VerifyCookie compares a presented cookie value against the derivation
// for the configured password in constant time.
func VerifyCookie(cookieValue, password, salt string) bool {
	expected := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(cookieValue), []byte(expected)) == 1
}
