package domain

// Intent is the classified purpose of a chat message.
type Intent string

const (
	// IntentSearch asks for people.
	IntentSearch Intent = "search"
	// IntentChat is small talk.
	IntentChat Intent = "chat"
	// IntentQuestion asks about the product or the process.
	IntentQuestion Intent = "question"
)

// Stage names used in degraded metadata, metrics and logs.
const (
	StageEmbedding   = "embedding"
	StageSparse      = "sparse_embedding"
	StageVectorIndex = "vector_index"
	StageFallback    = "fallback_sampling"
	StageIntent      = "intent"
	StageOptimize    = "query_optimization"
	StageKeywords    = "keyword_extraction"
	StageRerank      = "rerank"
	StageReply       = "reply"
	StageHydration   = "hydration"
)

// BatchMetadata describes how a batch was produced.
type BatchMetadata struct {
	Intent         Intent   `json:"intent,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	TotalFound     int      `json:"total_found"`
	Degraded       bool     `json:"degraded"`
	DegradedStages []string `json:"degraded_stages,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// RecommendationBatch is the response of one feed or chat request.
type RecommendationBatch struct {
	Query            *string            `json:"query"`
	SessionID        string             `json:"session_id,omitempty"`
	CandidateIDs     []string           `json:"candidate_ids"`
	Profiles         []Profile          `json:"profiles"`
	Scores           map[string]float64 `json:"scores,omitempty"`
	Reasoning        map[string]string  `json:"reasoning,omitempty"`
	SuggestedQueries []string           `json:"suggested_queries,omitempty"`
	Reply            string             `json:"reply,omitempty"`
	Metadata         BatchMetadata      `json:"metadata"`
}
