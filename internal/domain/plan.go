package domain

import (
	"strings"
)

// TurnType classifies a user turn.
type TurnType string

// Turn types produced by the classifier.
const (
	TurnNewTopic TurnType = "New Topic"
	TurnFollowUp TurnType = "Follow-Up"
	TurnChatter  TurnType = "Chatter"
)

// ParseTurnType maps loose spellings ("new_topic", "follow up", "CHATTER")
// onto a TurnType. Unknown values fall back to TurnNewTopic with ok=false.
func ParseTurnType(s string) (TurnType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	switch key {
	case "new topic", "newtopic", "new":
		return TurnNewTopic, true
	case "follow up", "followup":
		return TurnFollowUp, true
	case "chatter", "chat", "smalltalk", "small talk":
		return TurnChatter, true
	default:
		return TurnNewTopic, false
	}
}

// SearchPlan is the structured interpretation of one user turn.
//
// StrictGroups and FallbackKeywords are empty unless Type is TurnNewTopic.
type SearchPlan struct {
	Type             TurnType   `json:"type"`
	Dates            []Date     `json:"dates"`
	StrictGroups     [][]string `json:"strict_groups"`
	FallbackKeywords []string   `json:"fallback_keywords"`
}

// Topic is the retained subject of the last search: the keyword side of a plan.
type Topic struct {
	StrictGroups     [][]string `json:"strict_groups"`
	FallbackKeywords []string   `json:"fallback_keywords"`
}

// IsEmpty reports whether the topic carries no keywords at all.
func (t Topic) IsEmpty() bool {
	for _, g := range t.StrictGroups {
		for _, k := range g {
			if strings.TrimSpace(k) != "" {
				return false
			}
		}
	}
	for _, k := range t.FallbackKeywords {
		if strings.TrimSpace(k) != "" {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the topic.
func (t Topic) Clone() Topic {
	return Topic{
		StrictGroups:     cloneGroups(t.StrictGroups),
		FallbackKeywords: append([]string(nil), t.FallbackKeywords...),
	}
}

// Topic returns the keyword side of the plan.
func (p SearchPlan) Topic() Topic {
	return Topic{
		StrictGroups:     cloneGroups(p.StrictGroups),
		FallbackKeywords: append([]string(nil), p.FallbackKeywords...),
	}
}

func cloneGroups(groups [][]string) [][]string {
	if groups == nil {
		return nil
	}
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = append([]string(nil), g...)
	}
	return out
}
