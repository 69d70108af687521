package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string

	// ExcludeField/Exclude push an exclusion list down as a negated TAG pre-filter.
	ExcludeField string
	Exclude      []string

	// MatchField/MatchAny restrict the search to documents carrying at least one of the tags.
	MatchField string
	MatchAny   []string

	// EFRuntime overrides the HNSW search-time candidate list size when positive.
	EFRuntime int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
