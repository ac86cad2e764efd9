package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/auth"
	"github.com/wolfeidau/leadpool/internal/claim"
	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/logger"
	"github.com/wolfeidau/leadpool/internal/ratelimit"
	"github.com/wolfeidau/leadpool/internal/store"
	"github.com/wolfeidau/leadpool/internal/telemetry"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Config wires the server to its collaborators.
type Config struct {
	Store       store.Store
	Coordinator *claim.Coordinator
	// Stream serves GET /api/events.
	Stream   http.Handler
	Verifier *auth.Verifier
	// TrustProxy makes request logging use X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// ClaimLimiter limits claims and unclaims per user. Nil disables limiting.
	ClaimLimiter *ratelimit.Limiter
}

// Server exposes the company pool, claims and leads over HTTP.
type Server struct {
	store       store.Store
	coordinator *claim.Coordinator
	stream      http.Handler
	verifier    *auth.Verifier
	trustProxy  bool
	limiter     *ratelimit.Limiter
}

// NewServer creates a new server from cfg.
func NewServer(cfg Config) *Server {
	return &Server{
		store:       cfg.Store,
		coordinator: cfg.Coordinator,
		stream:      cfg.Stream,
		verifier:    cfg.Verifier,
		trustProxy:  cfg.TrustProxy,
		limiter:     cfg.ClaimLimiter,
	}
}

// apiHandler returns the authenticated /api routes.
func (s *Server) apiHandler() http.Handler {
	routes := http.NewServeMux()
	routes.HandleFunc("GET /api/companies", s.listCompanies)
	routes.HandleFunc("GET /api/companies/{id}", s.getCompany)
	routes.Handle("POST /api/companies/{id}/claim", s.rateLimited(http.HandlerFunc(s.claimCompany)))
	routes.Handle("POST /api/companies/{id}/unclaim", s.rateLimited(http.HandlerFunc(s.unclaimCompany)))
	routes.HandleFunc("GET /api/leads", s.listLeads)
	routes.HandleFunc("GET /api/leads/{id}", s.getLead)
	routes.HandleFunc("PATCH /api/leads/{id}", s.updateLead)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.verifier.Middleware(false)(routes))
	// EventSource cannot send headers, so the stream also takes ?access_token=
	mux.Handle("GET /api/events", s.verifier.Middleware(true)(s.stream))

	return mux
}

// Handler returns the complete HTTP handler for the server. apiMiddleware wraps only
// the /api routes, e.g. with CORS and cross-origin protection.
func (s *Server) Handler(log zerolog.Logger, apiMiddleware ...httpmiddleware.Middleware) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/api/", httpmiddleware.Chain(s.apiHandler(), apiMiddleware...))

	return httpmiddleware.Chain(mux,
		httpmiddleware.ClientIPMiddleware(s.trustProxy),
		logger.HTTPRequests(log),
	)
}

// rateLimited rejects a user's requests with 429 once their claim bucket is empty.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if ok && !s.limiter.Allow(strconv.FormatInt(user.ID, 10)) {
			telemetry.GetMetrics().RateLimitedTotal.Add(r.Context(), 1)
			zerolog.Ctx(r.Context()).Warn().Int64("user_id", user.ID).Msg("Claim rate limit exceeded")

			retryAfter := max(1, int(math.Ceil(s.limiter.Interval().Seconds())))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httpmiddleware.WriteError(w, r, http.StatusTooManyRequests, api.CodeRateLimited, "too many claim requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
