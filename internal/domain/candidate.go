package domain

// CandidateSource tells which stage produced a candidate.
type CandidateSource string

const (
	// SourceVector is a vector index hit.
	SourceVector CandidateSource = "vector"
	// SourceFallback is a uniformly sampled unseen user.
	SourceFallback CandidateSource = "fallback"
	// SourceLLM is a candidate scored by the reranker.
	SourceLLM CandidateSource = "llm"
)

// CandidateScore is a transient, per-request scored candidate.
type CandidateScore struct {
	UserID   string
	RawScore float64
	Source   CandidateSource
}
