package http

import (
	"net/http"

	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/metrics"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  core.User `json:"user"`
	Token string    `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := DecodeInto(w, r, &req); err != nil {
		respondError(w, r, err, log.OpRegister)
		return
	}

	u, err := s.deps.Auth.Register(r.Context(), req.Email, req.Name, req.Password)
	s.deps.Metrics.AuthAttempts.WithLabelValues("register", metrics.Outcome(err)).Inc()
	if err != nil {
		respondError(w, r, err, log.OpRegister)
		return
	}
	s.issueToken(w, r, u, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeInto(w, r, &req); err != nil {
		respondError(w, r, err, log.OpLogin)
		return
	}

	u, err := s.deps.Auth.Authenticate(r.Context(), req.Email, req.Password)
	s.deps.Metrics.AuthAttempts.WithLabelValues("login", metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.WithComponent(log.ComponentAuth).WarnContext(r.Context(), "Login failed",
			log.FieldClientIP, s.detector.ExtractClientIP(r))
		respondError(w, r, err, log.OpLogin)
		return
	}
	s.issueToken(w, r, u, http.StatusOK)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, u core.User, status int) {
	token, err := s.deps.Tokens.Generate(u)
	if err != nil {
		respondError(w, r, err, log.OpAuth)
		return
	}
	NewJSONResponse().Status(status).Body(authResponse{User: u, Token: token}).Write(w)
}
