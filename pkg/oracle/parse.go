package oracle

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var reFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// StripFence returns the body of the first markdown code fence in s, or s trimmed.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := reFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ParseExplanations decodes an explanation response. The payload must be a JSON
// array of entries, optionally wrapped in a markdown fence.
func ParseExplanations(raw string) ([]Entry, error) {
	body := StripFence(raw)
	if body == "" {
		return nil, &ParseError{Raw: raw, Err: errors.New("empty response")}
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	out := entries[:0]
	for _, e := range entries {
		if strings.TrimSpace(e.Phrase) == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
