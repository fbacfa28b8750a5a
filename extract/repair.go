package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/smallnest/researchchat/agent"
)

var (
	// ErrNoJSON is returned when the text holds no JSON array or object.
	ErrNoJSON = errors.New("no JSON found in model output")
	// ErrEmptyList is returned for a valid but empty array.
	ErrEmptyList = errors.New("JSON list is empty")
	// ErrNotList is returned when the JSON value is not an array.
	ErrNotList = errors.New("JSON value is not a list")
)

// Repair turns near-JSON model output into JSON text. The rules, in order:
//
//  1. Surrounding whitespace is trimmed.
//  2. A markdown code fence (```json or ```) around the payload is removed.
//  3. Prose before the first '[' or '{' and after the matching last ']' or
//     '}' is dropped.
//  4. Text that is still not valid JSON goes through jsonrepair, which fixes
//     trailing commas, single quotes, unquoted keys, missing closing brackets
//     and similar damage.
func Repair(raw string) (string, error) {
	s := stripFence(strings.TrimSpace(raw))

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	if end := strings.LastIndex(s, closer); end > start {
		s = s[start : end+1]
	} else {
		s = s[start:]
	}

	if json.Valid([]byte(s)) {
		return s, nil
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", fmt.Errorf("repair JSON: %w", err)
	}
	return repaired, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "```"); i >= 0 {
			// Fence after some prose: keep what is inside it.
			inner := s[i:]
			if j := strings.LastIndex(inner, "```"); j > 3 {
				return stripFence(strings.TrimSpace(inner[:j+3]))
			}
		}
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[{") {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseList repairs raw and decodes it as a non-empty list of objects that
// each carry every key in required as a non-empty string.
func ParseList(raw string, required ...string) ([]map[string]any, error) {
	fixed, err := Repair(raw)
	if err != nil {
		return nil, agent.E(agent.KindMalformedOutput, "parse", err)
	}

	var v any
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil, agent.E(agent.KindMalformedOutput, "parse", err)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, agent.E(agent.KindMalformedOutput, "parse", ErrNotList)
	}
	if len(list) == 0 {
		return nil, agent.E(agent.KindMalformedOutput, "parse", ErrEmptyList)
	}

	items := make([]map[string]any, 0, len(list))
	for i, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, agent.E(agent.KindMalformedOutput, "parse", fmt.Errorf("item %d is not an object", i))
		}
		for _, key := range required {
			s, ok := obj[key].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, agent.E(agent.KindMalformedOutput, "parse", fmt.Errorf("item %d: missing %q", i, key))
			}
		}
		items = append(items, obj)
	}
	return items, nil
}

// Section is one titled part of a structured research report.
type Section struct {
	Title       string `json:"alt_baslik"`
	Description string `json:"aciklama"`
}

// ParseSections decodes model output into sections. Both fields are required.
func ParseSections(raw string) ([]Section, error) {
	items, err := ParseList(raw, "alt_baslik", "aciklama")
	if err != nil {
		return nil, err
	}
	sections := make([]Section, len(items))
	for i, it := range items {
		sections[i] = Section{
			Title:       strings.TrimSpace(it["alt_baslik"].(string)),
			Description: strings.TrimSpace(it["aciklama"].(string)),
		}
	}
	return sections, nil
}
