package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks one provider (vector index, embedding model, LLM).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
