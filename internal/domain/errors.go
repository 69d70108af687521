package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable signals that the embedding model, vector index or LLM
	// could not be reached or timed out.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrMalformedProviderResponse signals an unparsable or schema-violating provider reply.
	ErrMalformedProviderResponse = errors.New("malformed provider response")
	// ErrVectorDimMismatch signals an embedding whose length differs from the configured dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")

	// ErrDuplicateDecision signals a second swipe by the same actor on the same target.
	ErrDuplicateDecision = errors.New("duplicate decision")
	// ErrContractViolation signals output that breaks the exclusion or subset invariants.
	ErrContractViolation = errors.New("contract violation")
)
