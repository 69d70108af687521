package recommend

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

const maxSuggestions = 3

// MessageProfilesUnavailable explains a batch left short by hydration.
const MessageProfilesUnavailable = "Some profiles are temporarily unavailable. Try again shortly for a full list."

// Ranked is one final candidate in display order.
type Ranked struct {
	UserID string
	Score  float64
	Reason string
}

// AssembleInput carries everything the batch is built from.
type AssembleInput struct {
	Query          *string
	SessionID      string
	Ranked         []Ranked
	Limit          int
	Intent         domain.Intent
	Confidence     float64
	Keywords       []string
	DegradedStages []string
	Message        string
	Reply          string
}

// Lookup hydrates one id.
type Lookup func(userID string) (domain.Profile, bool)

// Assemble builds the response batch. It keeps the ranked order, skips ids the
// lookup cannot hydrate and never returns more than Limit candidates. Skipped ids
// are replaced from further down the ranking; when that runs out the batch is
// marked degraded with StageHydration.
func Assemble(in AssembleInput, lookup Lookup) domain.RecommendationBatch {
	limit := in.Limit
	if limit <= 0 || limit > len(in.Ranked) {
		limit = len(in.Ranked)
	}

	b := domain.RecommendationBatch{
		Query:        in.Query,
		SessionID:    in.SessionID,
		CandidateIDs: make([]string, 0, limit),
		Profiles:     make([]domain.Profile, 0, limit),
		Scores:       make(map[string]float64, limit),
		Reply:        in.Reply,
	}
	dropped := 0
	for _, r := range in.Ranked {
		if len(b.CandidateIDs) == limit {
			break
		}
		p, ok := lookup(r.UserID)
		if !ok {
			dropped++
			continue
		}
		b.CandidateIDs = append(b.CandidateIDs, r.UserID)
		b.Profiles = append(b.Profiles, p)
		b.Scores[r.UserID] = r.Score
		if r.Reason != "" {
			if b.Reasoning == nil {
				b.Reasoning = make(map[string]string, limit)
			}
			b.Reasoning[r.UserID] = r.Reason
		}
	}

	stages, message := in.DegradedStages, in.Message
	if dropped > 0 && len(b.CandidateIDs) < limit {
		stages = append(slices.Clone(stages), domain.StageHydration)
		if message == "" {
			message = MessageProfilesUnavailable
		}
	}
	stages = dedupStages(stages)
	b.Metadata = domain.BatchMetadata{
		Intent:         in.Intent,
		Confidence:     in.Confidence,
		TotalFound:     len(b.CandidateIDs),
		Degraded:       len(stages) > 0,
		DegradedStages: stages,
		Message:        message,
	}
	if in.Query != nil {
		b.SuggestedQueries = SuggestQueries(*in.Query, in.Keywords, b.Profiles)
	}
	return b
}

// SuggestQueries derives up to three follow-up queries from the keywords and the
// skills of the top profiles that the query did not mention yet.
func SuggestQueries(query string, keywords []string, top []domain.Profile) []string {
	base := strings.TrimSpace(query)
	if len(keywords) > 0 {
		base = strings.Join(keywords[:min(2, len(keywords))], " ")
	}
	if base == "" {
		return nil
	}
	known := strings.ToLower(query + " " + strings.Join(keywords, " "))

	var out []string
	var used []string
	for _, p := range top[:min(len(top), 5)] {
		for _, skill := range p.Skills {
			s := strings.ToLower(strings.TrimSpace(skill))
			if s == "" || strings.Contains(known, s) || slices.Contains(used, s) {
				continue
			}
			used = append(used, s)
			out = append(out, fmt.Sprintf("%s with %s experience", base, s))
			if len(out) == maxSuggestions {
				return out
			}
		}
	}
	return out
}

func dedupStages(stages []string) []string {
	var out []string
	for _, s := range stages {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
