// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package middleware

import (
	"net/http"
	"time"

	"github.com/ki9ng/pawprint/internal/logging"
)

// RequestLogger emits one structured log line per request. Successes log at
// debug so a map UI polling every few seconds does not flood the journal.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		evt := logging.Debug()
		if wrapper.status >= http.StatusInternalServerError {
			evt = logging.Error()
		} else if wrapper.status >= http.StatusBadRequest {
			evt = logging.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}
