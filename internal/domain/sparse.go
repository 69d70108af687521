package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// SparseVector maps vocabulary term ids to non-negative salience weights.
type SparseVector map[uint32]float32

// Clean returns a copy without zero, negative or non-finite weights.
func (s SparseVector) Clean() SparseVector {
	out := make(SparseVector, len(s))
	for id, w := range s {
		if w > 0 && !math.IsInf(float64(w), 0) && !math.IsNaN(float64(w)) {
			out[id] = w
		}
	}
	return out
}

// Dot returns the sparse dot product of s and o.
func (s SparseVector) Dot(o SparseVector) float64 {
	a, b := s, o
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for id, w := range a {
		if x, ok := b[id]; ok {
			sum += float64(w) * float64(x)
		}
	}
	return sum
}

// Pairs returns term ids in ascending order with their weights.
func (s SparseVector) Pairs() (indices []uint32, values []float32) {
	indices = make([]uint32, 0, len(s))
	for id := range s {
		indices = append(indices, id)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	values = make([]float32, len(indices))
	for i, id := range indices {
		values[i] = s[id]
	}
	return indices, values
}

// Top returns up to n term ids with positive weight, heaviest first. Ties break on the smaller id.
func (s SparseVector) Top(n int) []uint32 {
	if n <= 0 {
		return nil
	}
	ids := make([]uint32, 0, len(s))
	for id := range s.Clean() {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		wi, wj := s[ids[i]], s[ids[j]]
		if wi != wj {
			return wi > wj
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Encode serializes s as "id:weight" pairs separated by commas, ordered by id.
func (s SparseVector) Encode() string {
	indices, values := s.Pairs()
	var b strings.Builder
	for i, id := range indices {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(float64(values[i]), 'g', -1, 32))
	}
	return b.String()
}

// DecodeSparse parses the output of SparseVector.Encode.
func DecodeSparse(raw string) (SparseVector, error) {
	out := SparseVector{}
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		idStr, wStr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("sparse pair %q: missing separator", pair)
		}
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("sparse term id %q: %w", idStr, err)
		}
		w, err := strconv.ParseFloat(wStr, 32)
		if err != nil {
			return nil, fmt.Errorf("sparse weight %q: %w", wStr, err)
		}
		out[uint32(id)] = float32(w)
	}
	return out, nil
}
