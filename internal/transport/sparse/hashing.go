package sparse

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

const (
	defaultVocabBits = 18
	maxVocabBits     = 31
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}+#.\-]*`)

// HashingEncoder maps tokens to term ids with FNV-1a and weights them by log1p(tf).
// It needs no model and is deterministic, so profiles and queries hash identically.
type HashingEncoder struct {
	mask      uint32
	stopwords map[string]struct{}
}

// NewHashingEncoder creates an encoder with a 2^bits term id space.
func NewHashingEncoder(bits int) *HashingEncoder {
	if bits <= 0 || bits > maxVocabBits {
		bits = defaultVocabBits
	}
	return &HashingEncoder{
		mask:      uint32(1)<<uint(bits) - 1,
		stopwords: Stopwords(),
	}
}

// EncodeSparse never fails; empty or stopword-only text yields an empty vector.
func (e *HashingEncoder) EncodeSparse(ctx context.Context, text string) (domain.SparseVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf := make(map[uint32]int)
	for _, tok := range Tokenize(text, e.stopwords) {
		tf[e.termID(tok)]++
	}
	out := make(domain.SparseVector, len(tf))
	for id, n := range tf {
		out[id] = float32(math.Log1p(float64(n)))
	}
	return out, nil
}

func (e *HashingEncoder) termID(tok string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return h.Sum32() & e.mask
}

// Tokenize lowercases text, splits it into word tokens and drops stopwords.
// Trailing dots and dashes are trimmed so "go." and "go" match, while "c++" and "c#" survive.
func Tokenize(text string, stopwords map[string]struct{}) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		t = strings.TrimRight(t, ".-")
		if t == "" {
			continue
		}
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Stopwords returns the English stopword set shared by the hashing encoder and keyword fallback.
func Stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so",
		"such", "into", "about", "between", "through", "during", "before", "after", "above", "below",
		"out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"i", "me", "my", "we", "our", "you", "your", "he", "she", "they", "them", "who", "whom",
		"what", "which", "want", "looking", "need", "find", "someone", "somebody", "people", "person",
		"please", "some", "any", "like", "would", "could",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
