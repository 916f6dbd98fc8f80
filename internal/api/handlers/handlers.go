// Package handlers adapts HTTP requests to the service layer.
package handlers

import (
	"net/http"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/api/httpx"
	"github.com/baharkarakas/welfare-backend/internal/middleware"
)

func expiresIn(at time.Time) int64 {
	return int64(time.Until(at).Truncate(time.Second).Seconds())
}

// currentUser returns the authenticated user id, writing a 401 when absent.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	return uid, ok
}
