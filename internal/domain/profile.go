package domain

import (
	"fmt"
	"strings"
)

// Profile is the display payload of a user, hydrated into responses and summarized for LLM prompts.
type Profile struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name,omitempty"`
	Headline  string   `json:"headline,omitempty"`
	Role      string   `json:"role,omitempty"`
	Bio       string   `json:"bio,omitempty"`
	Skills    []string `json:"skills,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Location  string   `json:"location,omitempty"`
}

// Validate checks the fields every stored profile must carry.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if p.EmbeddingText() == "" {
		return fmt.Errorf("%w: profile %s has no text to embed", ErrInvalidInput, p.UserID)
	}
	return nil
}

// EmbeddingText is the text the dense and sparse encoders see for this profile.
func (p *Profile) EmbeddingText() string {
	parts := make([]string, 0, 5)
	for _, s := range []string{p.Headline, p.Role, p.Bio} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(p.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(p.Skills, ", "))
	}
	if len(p.Interests) > 0 {
		parts = append(parts, "Interests: "+strings.Join(p.Interests, ", "))
	}
	return strings.Join(parts, ". ")
}

// Summary is a one-line description used in reranking prompts.
func (p *Profile) Summary() string {
	var b strings.Builder
	if p.Name != "" {
		b.WriteString(p.Name)
	} else {
		b.WriteString(p.UserID)
	}
	if p.Role != "" {
		b.WriteString(", " + p.Role)
	}
	if p.Headline != "" {
		b.WriteString(" - " + p.Headline)
	}
	if len(p.Skills) > 0 {
		b.WriteString("; skills: " + strings.Join(p.Skills, ", "))
	}
	if len(p.Interests) > 0 {
		b.WriteString("; interests: " + strings.Join(p.Interests, ", "))
	}
	if p.Location != "" {
		b.WriteString("; based in " + p.Location)
	}
	return b.String()
}

// ProfileVector is the indexed record of one user. It is replaced wholesale on profile update.
type ProfileVector struct {
	UserID  string
	Dense   []float32
	Sparse  SparseVector
	Profile Profile
}
