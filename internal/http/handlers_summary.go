package http

import (
	"net/http"

	"taxdesk/internal/log"
)

// handleUpsertSummary answers 201 when the summary was created and 200 when
// an existing one was replaced.
func (s *Server) handleUpsertSummary(w http.ResponseWriter, r *http.Request) {
	body, err := DecodeBody(w, r)
	if err != nil {
		respondError(w, r, err, log.OpUpsert)
		return
	}
	if err := authorize(r, bodyUserID(body)); err != nil {
		respondError(w, r, err, log.OpUpsert)
		return
	}

	sum, err := s.deps.Summary.Upsert(r.Context(), body)
	if err != nil {
		respondError(w, r, err, log.OpUpsert)
		return
	}
	status := http.StatusOK
	if sum.Created() {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Body(sum).Write(w)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	key, err := KeyFromQuery(r)
	if err != nil {
		respondError(w, r, err, log.OpRead)
		return
	}
	if err := authorize(r, key.UserID); err != nil {
		respondError(w, r, err, log.OpRead)
		return
	}

	sum, err := s.deps.Summary.Get(r.Context(), key)
	if err != nil {
		respondError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Body(sum).Write(w)
}
