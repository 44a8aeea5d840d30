// Package conversation owns per-session query resolution: it applies a
// classified plan to the session state and decides what the assistant does
// next.
package conversation

import (
	"github.com/ashureev/postlens/internal/domain"
	"github.com/ashureev/postlens/internal/matcher"
)

// Action is what the turn handler does after a plan is applied.
type Action string

// Actions.
const (
	// ActionSearch ran the matcher and narrates the new result.
	ActionSearch Action = "search"
	// ActionRenarrate narrates the existing matched data again.
	ActionRenarrate Action = "renarrate"
	// ActionClarify asks the user for a date.
	ActionClarify Action = "clarify"
	// ActionChatter answers conversationally without touching data.
	ActionChatter Action = "chatter"
)

// Outcome describes how a plan was applied.
type Outcome struct {
	// Plan is the effective plan after the safety net.
	Plan         domain.SearchPlan
	Action       Action
	Reclassified bool
	// Topic is the keyword context the narration should cite.
	Topic domain.Topic
	// Match is set when the matcher ran.
	Match *matcher.Result
}

// Step applies plan to state and returns the next state. The input state is
// not modified. The message log is left to the caller.
func Step(state domain.SessionState, plan domain.SearchPlan, posts []domain.Post) (domain.SessionState, Outcome) {
	next := state.Clone()
	out := Outcome{Plan: plan}

	// A date-less new topic right after asking for a date is most likely the
	// user reacting to the question, not a fresh subject.
	if state.AwaitingDate && plan.Type == domain.TurnNewTopic && len(plan.Dates) == 0 {
		out.Plan = domain.SearchPlan{Type: domain.TurnChatter}
		out.Reclassified = true
	}

	switch out.Plan.Type {
	case domain.TurnNewTopic:
		if len(out.Plan.Dates) == 0 {
			next.AwaitingDate = true
			next.SearchPerformed = false
			out.Action = ActionClarify
			out.Topic = out.Plan.Topic()
			break
		}
		topic := out.Plan.Topic()
		res := matcher.Match(posts, matcher.QueryFor(topic, out.Plan.Dates))
		next.AwaitingDate = false
		next.LastSearch = &topic
		next.LastDates = append([]domain.Date(nil), out.Plan.Dates...)
		next.Matched = res.Posts
		next.SearchPerformed = true
		out.Action = ActionSearch
		out.Topic = topic
		out.Match = &res

	case domain.TurnFollowUp:
		next.AwaitingDate = false
		next.SearchPerformed = true
		topic := domain.Topic{}
		if next.LastSearch != nil {
			topic = next.LastSearch.Clone()
		}
		out.Topic = topic
		if len(out.Plan.Dates) == 0 {
			out.Action = ActionRenarrate
			break
		}
		res := matcher.Match(posts, matcher.QueryFor(topic, out.Plan.Dates))
		next.LastDates = append([]domain.Date(nil), out.Plan.Dates...)
		next.Matched = res.Posts
		out.Action = ActionSearch
		out.Match = &res

	default:
		next.AwaitingDate = false
		next.SearchPerformed = false
		out.Action = ActionChatter
		if next.LastSearch != nil {
			out.Topic = next.LastSearch.Clone()
		}
	}
	return next, out
}
