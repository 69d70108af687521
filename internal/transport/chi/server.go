package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	domusage "github.com/kailas-cloud/matchdex/internal/domain/usage"
	"github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/metrics"
	healthuc "github.com/kailas-cloud/matchdex/internal/usecase/health"
	"github.com/kailas-cloud/matchdex/internal/usecase/recommend"
)

const maxBodyBytes = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the matchdex HTTP API.
type Server struct {
	recommender   Recommender
	swipes        Swipes
	profiles      Profiles
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	recommender Recommender,
	swipes Swipes,
	profiles Profiles,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		recommender: recommender,
		swipes:      swipes,
		profiles:    profiles,
		usage:       usage,
		health:      health,
		logger:      logger,
	}
	// Order matters: the first matching sentinel wins.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrContractViolation, http.StatusInternalServerError, ErrorCodeInternalError),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, ErrorCodeQuotaExceeded),
		sentinelHandler(domain.ErrMalformedProviderResponse, http.StatusBadGateway, ErrorCodeProviderError),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusServiceUnavailable, ErrorCodeProviderUnavailable),
	}
	return s
}

// Routes registers all handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/users/{userID}/feed", s.GetFeed)
		r.Get("/users/{userID}/swipes", s.ListSwipes)
		r.Post("/search", s.Search)
		r.Post("/swipes", s.RecordSwipe)
		r.Put("/profiles/{userID}", s.UpsertProfile)
		r.Get("/profiles/{userID}", s.GetProfile)
		r.Delete("/profiles/{userID}", s.DeleteProfile)
		r.Get("/usage", s.GetUsage)
	})
}

// Handler returns a router with all routes mounted under the given middlewares.
func (s *Server) Handler(middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	s.Routes(r)
	return r
}

// GetFeed handles GET /v1/users/{userID}/feed.
func (s *Server) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter limit")
		return
	}
	if limit != nil && *limit <= 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "limit must be positive")
		return
	}

	ctx, usage := domain.WithRequestUsage(r.Context())
	batch, err := s.recommender.Feed(ctx, recommend.FeedRequest{UserID: userID, Limit: derefInt(limit)})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeBatch(w, batch, usage)
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "user_id is required")
		return
	}
	if req.Limit != nil && *req.Limit <= 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "limit must be positive")
		return
	}

	ctx, usage := domain.WithRequestUsage(r.Context())
	batch, err := s.recommender.Chat(ctx, recommend.ChatRequest{
		UserID:    req.UserID,
		Query:     req.Query,
		SessionID: req.SessionID,
		Limit:     derefInt(req.Limit),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeBatch(w, batch, usage)
}

// RecordSwipe handles POST /v1/swipes. A repeated decision answers 200 with duplicate set.
func (s *Server) RecordSwipe(w http.ResponseWriter, r *http.Request) {
	var req SwipeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ActorID == "" || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "actor_id and target_id are required")
		return
	}

	res, err := s.swipes.Record(r.Context(), req.ActorID, req.TargetID, req.Direction)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, swipeToResponse(res.Interaction, res.Duplicate))
}

// ListSwipes handles GET /v1/users/{userID}/swipes.
func (s *Server) ListSwipes(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	items, err := s.swipes.History(r.Context(), userID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := SwipeListResponse{Items: make([]SwipeResponse, len(items)), Total: len(items)}
	for i, it := range items {
		resp.Items[i] = swipeToResponse(it, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpsertProfile handles PUT /v1/profiles/{userID}.
func (s *Server) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}
	var p domain.Profile
	if !decodeBody(w, r, &p) {
		return
	}
	if p.UserID != "" && p.UserID != userID {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "user_id in body does not match path")
		return
	}
	p.UserID = userID

	ctx, usage := domain.WithRequestUsage(r.Context())
	res, err := s.profiles.Upsert(ctx, p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, ProfileUpsertResponse{
		Profile:        res.Profile,
		Indexed:        res.Indexed,
		SparseFallback: res.SparseFallback,
	})
}

// GetProfile handles GET /v1/profiles/{userID}.
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	p, err := s.profiles.Get(r.Context(), userID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProfile handles DELETE /v1/profiles/{userID}.
func (s *Server) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUserID(w, r)
	if !ok {
		return
	}

	if err := s.profiles.Delete(r.Context(), userID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter period")
		return
	}
	var name string
	if raw != nil {
		name = *raw
	}
	period, err := domusage.ParsePeriod(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, usageToResponse(s.usage.GetReport(r.Context(), period)))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: report.Status,
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) pathUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var userID string
	err := runtime.BindStyledParameterWithOptions("simple", "userID", chi.URLParam(r, "userID"), &userID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || userID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter userID")
		return "", false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeBatch(w http.ResponseWriter, batch domain.RecommendationBatch, usage *domain.RequestUsage) {
	setUsageHeaders(w, usage)
	if batch.Metadata.Degraded {
		w.Header().Set(metrics.DegradedHeader, "true")
	}
	writeJSON(w, http.StatusOK, batch)
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.RequestUsage) {
	if tokens, calls := usage.Embedding(); calls > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(tokens))
	}
	if n := usage.Completions(); n > 0 {
		w.Header().Set("X-LLM-Completions", strconv.Itoa(n))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrInvalidInput,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrMalformedProviderResponse,
		domain.ErrProviderUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	if errors.Is(err, domain.ErrContractViolation) {
		log.Error("response failed closed", zap.Error(err))
	} else {
		log.Warn("domain error", zap.Error(err))
	}
	if r.Context().Err() != nil {
		// Client went away; nobody reads the body.
		writeError(w, http.StatusServiceUnavailable, ErrorCodeProviderUnavailable, "request cancelled")
		return
	}
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(fmt.Errorf("unmapped: %w", err)))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
