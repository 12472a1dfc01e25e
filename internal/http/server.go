package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"taxdesk/internal/auth"
	"taxdesk/internal/log"
	"taxdesk/internal/metrics"
	"taxdesk/internal/middleware/bearer"
	"taxdesk/internal/middleware/ratelimit"
	"taxdesk/internal/middleware/security"
	"taxdesk/internal/middleware/trace"
	"taxdesk/internal/services"
	"taxdesk/internal/taxcalc"
)

// Deps are the collaborators the API serves from.
type Deps struct {
	Income  *services.IncomeService
	Summary *services.SummaryService
	Auth    *auth.PasswordAuthenticator
	Tokens  *auth.JWTManager
	Tax     *taxcalc.Table
	Metrics *metrics.Metrics
	Logger  *log.Logger

	// Ready reports whether backing stores are reachable; nil means always.
	Ready     func(context.Context) error
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	deps     Deps
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if len(deps.RateLimit.Methods) == 0 {
		deps.RateLimit.Methods = ratelimit.DefaultConfig().Methods
	}

	s := &Server{
		deps:     deps,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(),
	}

	router := mux.NewRouter()
	router.Use(trace.RecordRoute)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "Not found").Write(w)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Write(w)
	})

	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited))

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(bearer.RequireAuth(deps.Tokens, s.onUnauthorized))

	protected.HandleFunc("/income-details", s.handleListDetails).Methods(http.MethodGet)
	// The summary shares the category URL space, so it must be matched first.
	protected.HandleFunc("/income-details/income-summary", s.handleUpsertSummary).Methods(http.MethodPost)
	protected.HandleFunc("/income-details/income-summary", s.handleGetSummary).Methods(http.MethodGet)
	protected.HandleFunc("/income-details/{category}", s.handleCreateDetail).Methods(http.MethodPost)
	protected.HandleFunc("/income-details/{category}", s.handleGetDetail).Methods(http.MethodGet)
	protected.HandleFunc("/income-details/{category}", s.handleUpdateDetail).Methods(http.MethodPut)
	protected.HandleFunc("/income-details/{category}", s.handleDeleteDetail).Methods(http.MethodDelete)
	protected.HandleFunc("/tax/salary", s.handleSalaryTax).Methods(http.MethodPost)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, deps.Logger, deps.Metrics)

	var handler http.Handler = router
	handler = log.Middleware(deps.Logger, trace.RequestID)(handler)
	handler = s.detector.Middleware(deps.Logger)(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.deps.Metrics.RateLimited.Inc()
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}

func (s *Server) onUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err, log.OpAuth)
}
