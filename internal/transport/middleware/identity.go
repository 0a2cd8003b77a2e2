// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aiqx/core-service/internal/auth"
	"github.com/aiqx/core-service/internal/domain"
)

const healthzPath = "/healthz"
const metricsPath = "/metrics"
const versionPath = "/version"

const headerInternalToken = "X-Internal-Token"
const headerUserID = "X-User-Id"
const headerUserRoles = "X-User-Roles"
const headerUserLanguage = "X-User-Language"

// Identity authenticates every route except /healthz, /metrics and
// /version. A valid X-Internal-Token marks the request as a trusted
// service-to-service call; otherwise the gateway-provided user headers
// must identify the actor.
func Identity(internalToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == healthzPath || r.URL.Path == metricsPath || r.URL.Path == versionPath {
				next.ServeHTTP(w, r)
				return
			}

			if token := r.Header.Get(headerInternalToken); token != "" {
				if internalToken == "" ||
					subtle.ConstantTimeCompare([]byte(token), []byte(internalToken)) != 1 {
					logger.Warn("request blocked by internal token check",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
					)
					http.Error(w, "invalid internal token", http.StatusUnauthorized)
					return
				}

				actor := auth.Actor{Internal: true, ID: r.Header.Get(headerUserID)}
				// Preserve the actor on the current request pointer so outer
				// middleware (request logging) can read it after next returns.
				*r = *r.WithContext(auth.WithActor(r.Context(), actor))
				next.ServeHTTP(w, r)
				return
			}

			userID := strings.TrimSpace(r.Header.Get(headerUserID))
			if userID == "" {
				logger.Warn("request blocked by identity middleware",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				http.Error(w, "missing user identity", http.StatusUnauthorized)
				return
			}

			actor := auth.Actor{
				ID:       userID,
				Roles:    parseRoles(r.Header.Get(headerUserRoles)),
				Language: strings.TrimSpace(r.Header.Get(headerUserLanguage)),
			}

			*r = *r.WithContext(auth.WithActor(r.Context(), actor))
			next.ServeHTTP(w, r)
		})
	}
}

// parseRoles maps the comma-separated role header to known roles;
// anything unrecognized is dropped.
func parseRoles(raw string) []domain.Role {
	parts := strings.Split(raw, ",")
	out := make([]domain.Role, 0, len(parts))
	for _, part := range parts {
		switch domain.Role(strings.TrimSpace(part)) {
		case domain.RoleRequestor:
			out = append(out, domain.RoleRequestor)
		case domain.RoleReviewTeam:
			out = append(out, domain.RoleReviewTeam)
		}
	}
	return out
}
