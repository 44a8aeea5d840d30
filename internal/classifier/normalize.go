package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/postlens/internal/domain"
)

var (
	errEmptyResponse = errors.New("classifier returned an empty response")
	errNoJSONObject  = errors.New("classifier response has no JSON object")
)

// Fallback is the plan used when classification fails: the raw prompt becomes
// the only strict group and the only fallback keyword.
func Fallback(prompt string) domain.SearchPlan {
	prompt = strings.TrimSpace(prompt)
	plan := domain.SearchPlan{Type: domain.TurnNewTopic}
	if prompt != "" {
		plan.StrictGroups = [][]string{{prompt}}
		plan.FallbackKeywords = []string{prompt}
	}
	return plan
}

// Parse extracts and normalizes a plan from raw model output. Code fences and
// surrounding prose are tolerated.
func Parse(raw string) (domain.SearchPlan, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return domain.SearchPlan{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return domain.SearchPlan{}, fmt.Errorf("decode plan: %w", err)
	}
	return Normalize(fields), nil
}

func extractObject(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errEmptyResponse
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, errNoJSONObject
	}
	return []byte(raw[start : end+1]), nil
}

// Normalize builds a plan from decoded JSON fields. Missing keys default to
// empty values and an unknown type becomes New Topic. Keyword fields are
// cleared for Follow-Up and Chatter turns.
func Normalize(fields map[string]json.RawMessage) domain.SearchPlan {
	plan := domain.SearchPlan{Type: domain.TurnNewTopic}

	var typ string
	if decodeLoose(fields["type"], &typ) {
		plan.Type, _ = domain.ParseTurnType(typ)
	}
	plan.Dates = normalizeDates(stringList(fields["dates"]))

	if plan.Type != domain.TurnNewTopic {
		return plan
	}
	plan.StrictGroups = normalizeGroups(groupList(fields["strict_groups"]))
	plan.FallbackKeywords = cleanKeywords(stringList(fields["fallback_keywords"]))
	return plan
}

func decodeLoose(raw json.RawMessage, v any) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// stringList accepts a JSON array of strings or a single string.
func stringList(raw json.RawMessage) []string {
	var list []any
	if decodeLoose(raw, &list) {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	var single string
	if decodeLoose(raw, &single) {
		return []string{single}
	}
	return nil
}

// groupList accepts an array of arrays, a flat array (one group per string)
// or a single string.
func groupList(raw json.RawMessage) [][]string {
	var list []any
	if !decodeLoose(raw, &list) {
		if s := stringList(raw); len(s) > 0 {
			return [][]string{s}
		}
		return nil
	}
	out := make([][]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, []string{v})
		case []any:
			group := make([]string, 0, len(v))
			for _, kw := range v {
				if s, ok := kw.(string); ok {
					group = append(group, s)
				}
			}
			out = append(out, group)
		}
	}
	return out
}

// normalizeDates drops unparseable entries and keeps repeats, so the number
// of dates still selects exact day, range or set downstream. A list of three
// or more that lost entries stays a set.
func normalizeDates(values []string) []domain.Date {
	var out []domain.Date
	for _, v := range values {
		d, err := domain.ParseDate(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	if len(values) >= 3 && len(out) == 2 {
		out = append(out, out[1])
	}
	return out
}

func normalizeGroups(groups [][]string) [][]string {
	var out [][]string
	seen := make(map[string]bool)
	for _, g := range groups {
		kws := cleanKeywords(g)
		if len(kws) == 0 {
			continue
		}
		key := strings.ToLower(strings.Join(kws, "\x00"))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kws)
	}
	return out
}

// cleanKeywords trims, drops blanks and removes case-insensitive duplicates,
// keeping first occurrences.
func cleanKeywords(keywords []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.Join(strings.Fields(kw), " ")
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}
