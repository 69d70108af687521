package profile

import (
	"strings"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

const listSep = "|"

// buildHashFields flattens a profile for HSET. Empty fields are omitted.
func buildHashFields(p *domain.Profile) map[string]string {
	m := map[string]string{"user_id": p.UserID}
	for k, v := range map[string]string{
		"name":      p.Name,
		"headline":  p.Headline,
		"role":      p.Role,
		"bio":       p.Bio,
		"location":  p.Location,
		"skills":    joinList(p.Skills),
		"interests": joinList(p.Interests),
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// parseHashFields rebuilds a profile from a hash. Unknown fields are ignored.
func parseHashFields(id string, m map[string]string) domain.Profile {
	return domain.Profile{
		UserID:    id,
		Name:      m["name"],
		Headline:  m["headline"],
		Role:      m["role"],
		Bio:       m["bio"],
		Location:  m["location"],
		Skills:    splitList(m["skills"]),
		Interests: splitList(m["interests"]),
	}
}

func joinList(items []string) string {
	clean := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(strings.ReplaceAll(s, listSep, " "))
		if s != "" {
			clean = append(clean, s)
		}
	}
	return strings.Join(clean, listSep)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, listSep)
}
