package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"taxdesk/internal/core"
	"taxdesk/internal/log"
)

func categoryFrom(r *http.Request) (core.Category, error) {
	return core.ParseCategory(mux.Vars(r)["category"])
}

func (s *Server) handleCreateDetail(w http.ResponseWriter, r *http.Request) {
	c, err := categoryFrom(r)
	if err != nil {
		respondError(w, r, err, log.OpCreate)
		return
	}
	body, err := DecodeBody(w, r)
	if err != nil {
		respondError(w, r, err, log.OpCreate)
		return
	}
	if err := authorize(r, bodyUserID(body)); err != nil {
		respondError(w, r, err, log.OpCreate)
		return
	}

	d, err := s.deps.Income.Create(r.Context(), c, body)
	if err != nil {
		respondError(w, r, err, log.OpCreate)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(d).Write(w)
}

func (s *Server) handleGetDetail(w http.ResponseWriter, r *http.Request) {
	c, err := categoryFrom(r)
	if err != nil {
		respondError(w, r, err, log.OpRead)
		return
	}
	key, err := KeyFromQuery(r)
	if err != nil {
		respondError(w, r, err, log.OpRead)
		return
	}
	if err := authorize(r, key.UserID); err != nil {
		respondError(w, r, err, log.OpRead)
		return
	}

	d, err := s.deps.Income.Get(r.Context(), key, c)
	if err != nil {
		respondError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

func (s *Server) handleUpdateDetail(w http.ResponseWriter, r *http.Request) {
	c, err := categoryFrom(r)
	if err != nil {
		respondError(w, r, err, log.OpUpdate)
		return
	}
	body, err := DecodeBody(w, r)
	if err != nil {
		respondError(w, r, err, log.OpUpdate)
		return
	}
	if err := authorize(r, bodyUserID(body)); err != nil {
		respondError(w, r, err, log.OpUpdate)
		return
	}

	d, err := s.deps.Income.Update(r.Context(), c, body)
	if err != nil {
		respondError(w, r, err, log.OpUpdate)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

func (s *Server) handleDeleteDetail(w http.ResponseWriter, r *http.Request) {
	c, err := categoryFrom(r)
	if err != nil {
		respondError(w, r, err, log.OpDelete)
		return
	}
	key, err := KeyFromQuery(r)
	if err != nil {
		respondError(w, r, err, log.OpDelete)
		return
	}
	if err := authorize(r, key.UserID); err != nil {
		respondError(w, r, err, log.OpDelete)
		return
	}

	if err := s.deps.Income.Delete(r.Context(), key, c); err != nil {
		respondError(w, r, err, log.OpDelete)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleListDetails returns every category stored for the key, keyed by
// category.
func (s *Server) handleListDetails(w http.ResponseWriter, r *http.Request) {
	key, err := KeyFromQuery(r)
	if err != nil {
		respondError(w, r, err, log.OpList)
		return
	}
	if err := authorize(r, key.UserID); err != nil {
		respondError(w, r, err, log.OpList)
		return
	}

	details, err := s.deps.Income.List(r.Context(), key)
	if err != nil {
		respondError(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"userId":  key.UserID,
		"taxYear": key.TaxYear,
		"details": details,
	}).Write(w)
}
