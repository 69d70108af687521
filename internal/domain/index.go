package domain

// IndexQuery is one hybrid similarity search. ExcludeIDs never appear in the hits.
type IndexQuery struct {
	Dense      []float32
	Sparse     SparseVector
	TopK       int
	ExcludeIDs []string
}

// IndexHit is a user ranked by fused similarity. Higher Score is more similar.
type IndexHit struct {
	UserID string
	Score  float64
}
