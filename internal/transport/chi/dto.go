package chi

import (
	"time"

	"github.com/kailas-cloud/matchdex/internal/domain"
	domusage "github.com/kailas-cloud/matchdex/internal/domain/usage"
	healthuc "github.com/kailas-cloud/matchdex/internal/usecase/health"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeValidationFailed    ErrorCode = "validation_failed"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeQuotaExceeded       ErrorCode = "embedding_quota_exceeded"
	ErrorCodeProviderError       ErrorCode = "provider_error"
	ErrorCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrorCodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

// SwipeRequest is the body of POST /v1/swipes.
type SwipeRequest struct {
	ActorID   string `json:"actor_id"`
	TargetID  string `json:"target_id"`
	Direction string `json:"direction"`
}

// SwipeResponse is one recorded decision.
type SwipeResponse struct {
	ActorID   string    `json:"actor_id"`
	TargetID  string    `json:"target_id"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Duplicate bool      `json:"duplicate"`
}

// SwipeListResponse is the body of GET /v1/users/{userID}/swipes.
type SwipeListResponse struct {
	Items []SwipeResponse `json:"items"`
	Total int             `json:"total"`
}

// ProfileUpsertResponse is the body of PUT /v1/profiles/{userID}.
type ProfileUpsertResponse struct {
	Profile        domain.Profile `json:"profile"`
	Indexed        bool           `json:"indexed"`
	SparseFallback bool           `json:"sparse_fallback,omitempty"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Period        string     `json:"period"`
	PeriodStartAt *time.Time `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time `json:"period_end_at,omitempty"`
	Tokens        int64      `json:"tokens"`
	Budget        struct {
		TokensLimit     int64 `json:"tokens_limit"`
		TokensRemaining int64 `json:"tokens_remaining"`
		IsExhausted     bool  `json:"is_exhausted"`
	} `json:"budget"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

func swipeToResponse(in domain.Interaction, duplicate bool) SwipeResponse {
	return SwipeResponse{
		ActorID:   in.ActorID,
		TargetID:  in.TargetID,
		Direction: string(in.Direction),
		Timestamp: in.Timestamp.UTC(),
		Duplicate: duplicate,
	}
}

func usageToResponse(r domusage.Report) UsageResponse {
	resp := UsageResponse{Period: string(r.Period), Tokens: r.Tokens}
	resp.Budget.TokensLimit = r.Limit
	resp.Budget.TokensRemaining = r.Remaining
	resp.Budget.IsExhausted = r.Exhausted()
	if !r.PeriodStart.IsZero() {
		start, end := r.PeriodStart.UTC(), r.PeriodEnd.UTC()
		resp.PeriodStartAt, resp.PeriodEndAt = &start, &end
	}
	return resp
}
