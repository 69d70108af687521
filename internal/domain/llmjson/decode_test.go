package llmjson

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

type intentReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (r *intentReply) Validate() error {
	if r.Intent == "" {
		return errors.New("intent is empty")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.New("confidence out of range")
	}
	return nil
}

func TestDecode_Plain(t *testing.T) {
	got, err := Decode[intentReply](`{"intent":"search","confidence":0.9}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != "search" || got.Confidence != 0.9 {
		t.Errorf("unexpected reply %+v", got)
	}
}

func TestDecode_Fenced(t *testing.T) {
	raw := "Sure! Here you go:\n```json\n{\"intent\": \"chat\", \"confidence\": 0.4}\n```\nAnything else?"
	got, err := Decode[intentReply](raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != "chat" {
		t.Errorf("expected chat, got %q", got.Intent)
	}
}

func TestDecode_BodyOnFenceLine(t *testing.T) {
	for name, raw := range map[string]string{
		"object then newline": "```{\"intent\":\"search\",\"confidence\":1}\n```",
		"single line":         "```{\"intent\":\"search\",\"confidence\":1}```",
		"bare fence":          "```\n{\"intent\":\"search\",\"confidence\":1}\n```",
		"upper info":          "```JSON \n{\"intent\":\"search\",\"confidence\":1}\n```",
	} {
		t.Run(name, func(t *testing.T) {
			got, err := Decode[intentReply](raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Intent != "search" {
				t.Errorf("intent = %q", got.Intent)
			}
		})
	}
}

func TestDecode_ProseAroundObject(t *testing.T) {
	got, err := Decode[intentReply](`The answer is {"intent":"question","confidence":1} as requested.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != "question" {
		t.Errorf("expected question, got %q", got.Intent)
	}
}

func TestDecode_Array(t *testing.T) {
	got, err := Decode[[]string]("```\n[\"go\", \"rust\"]\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1] != "rust" {
		t.Errorf("unexpected array %v", got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"no json":       "I cannot help with that.",
		"unknown field": `{"intent":"search","confidence":0.5,"extra":true}`,
		"wrong type":    `{"intent":"search","confidence":"high"}`,
		"validation":    `{"intent":"search","confidence":3}`,
		"truncated":     `{"intent":"search","confidence":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode[intentReply](raw)
			if !errors.Is(err, domain.ErrMalformedProviderResponse) {
				t.Errorf("expected ErrMalformedProviderResponse, got %v", err)
			}
			if !IsMalformed(err) {
				t.Error("IsMalformed must report true")
			}
		})
	}
}

func TestCompact(t *testing.T) {
	if got := Compact("```json\n{ \"a\" : 1 }\n```"); got != `{"a":1}` {
		t.Errorf("unexpected compact output %q", got)
	}
}
