// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

// Package api implements the admin REST surface under /api/v1: virtual
// library and advanced filter CRUD, layout settings, and cover
// generation control. All endpoints share one response envelope.
package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/prism-media/prism/internal/logging"
	"github.com/prism-media/prism/internal/middleware"
)

// APIResponse is the envelope every admin endpoint returns.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries a machine-readable code next to the message.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

func respondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, r, status, APIResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, r, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode API response")
	}
}

// decodeBody unmarshals a JSON request body into dst, reporting malformed
// input to the client.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
