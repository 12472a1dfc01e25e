package http

import (
	"context"
	"net/http"
	"time"

	"taxdesk/internal/log"
	"taxdesk/internal/middleware/bearer"
)

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// authorize rejects a request acting on another user's records.
func authorize(r *http.Request, userID string) error {
	if userID != "" && userID != bearer.UserID(r.Context()) {
		return errForbidden
	}
	return nil
}
