// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
	"github.com/ki9ng/pawprint/internal/validation"
)

// respondJSON writes a successful APIResponse envelope with an ETag derived
// from the body, so the map UI can poll cheaply between stream reconnects.
func respondJSON(w http.ResponseWriter, r *http.Request, data interface{}, start time.Time) {
	resp := models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	}

	body, err := json.Marshal(resp)
	if err != nil {
		logging.Err(err).Str("path", r.URL.Path).Msg("marshal response")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to encode response")
		return
	}

	etag := generateETag(body)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.Err(err).Str("path", r.URL.Path).Msg("write response")
	}
}

// generateETag hashes the body with FNV-1a. Weak validator, cheap to compute.
func generateETag(body []byte) string {
	var hash uint32 = 2166136261
	for _, b := range body {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return fmt.Sprintf(`"%08x"`, hash)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	resp := models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Err(err).Msg("write error response")
	}
}

// decodeRequest unmarshals and validates a JSON request body. A false return
// means the response has already been written.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", verr.Error())
		return false
	}
	return true
}

// getIntParam reads an optional integer query parameter, falling back to def.
func getIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter %q must be an integer", name)
	}
	return v, nil
}
