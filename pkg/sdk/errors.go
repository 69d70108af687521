package matchdex

import "github.com/kailas-cloud/matchdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidInput           = domain.ErrInvalidInput
	ErrProviderUnavailable    = domain.ErrProviderUnavailable
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrContractViolation      = domain.ErrContractViolation
)
