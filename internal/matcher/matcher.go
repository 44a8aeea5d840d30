// Package matcher filters posts by a date scope and tiered keyword rules.
//
// Matching runs in up to two tiers over the date-scoped subset. The strict
// tier ORs together keyword groups whose members must all be present. The
// fallback tier ORs single keywords and only runs when the strict tier finds
// nothing. Keyword comparison is a Unicode case-folded substring test.
package matcher

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ashureev/postlens/internal/domain"
)

// Tier reports which rule produced a result.
type Tier string

// Tiers.
const (
	TierNone     Tier = "none"
	TierDateOnly Tier = "date_only"
	TierStrict   Tier = "strict"
	TierFallback Tier = "fallback"
)

// Query is the keyword and date side of a search plan.
type Query struct {
	StrictGroups     [][]string
	FallbackKeywords []string
	Dates            []domain.Date
}

// QueryFor builds a query from a retained topic and a date list.
func QueryFor(topic domain.Topic, dates []domain.Date) Query {
	return Query{
		StrictGroups:     topic.StrictGroups,
		FallbackKeywords: topic.FallbackKeywords,
		Dates:            dates,
	}
}

// Result is the outcome of Match.
type Result struct {
	Posts []domain.Post
	Tier  Tier
	// Scoped is the size of the date-scoped subset before keyword matching.
	Scoped int
}

// Match applies q to posts. The input slice is not modified. The returned
// posts are ordered by publication time ascending; ties keep dataset order.
func Match(posts []domain.Post, q Query) Result {
	scoped := FilterDates(posts, q.Dates)
	if len(scoped) == 0 {
		return Result{Tier: TierNone}
	}

	// Only a query that names no keywords at all is date-only. Blank
	// keywords still count as a topic that matches nothing.
	if len(q.StrictGroups) == 0 && len(q.FallbackKeywords) == 0 {
		return Result{Posts: sortByTime(scoped), Tier: TierDateOnly, Scoped: len(scoped)}
	}

	folder := cases.Fold()
	groups := foldGroups(folder, q.StrictGroups)
	fallback := foldKeywords(folder, q.FallbackKeywords)

	content := make([]string, len(scoped))
	for i := range scoped {
		content[i] = folder.String(scoped[i].Content)
	}

	if hits := matchStrict(content, groups); len(hits) > 0 {
		return Result{Posts: sortByTime(pick(scoped, hits)), Tier: TierStrict, Scoped: len(scoped)}
	}
	if len(fallback) > 0 {
		if hits := matchAny(content, fallback); len(hits) > 0 {
			return Result{Posts: sortByTime(pick(scoped, hits)), Tier: TierFallback, Scoped: len(scoped)}
		}
	}
	return Result{Tier: TierNone, Scoped: len(scoped)}
}

// FilterDates returns the posts published on the given days.
//
// No dates keeps everything. One date keeps that calendar day. Two dates keep
// the inclusive range between the earlier and the later one. Three or more
// keep exactly the listed days.
func FilterDates(posts []domain.Post, dates []domain.Date) []domain.Post {
	var keep func(domain.Date) bool
	switch len(dates) {
	case 0:
		return slices.Clone(posts)
	case 1:
		want := dates[0]
		keep = func(d domain.Date) bool { return d == want }
	case 2:
		lo, hi := dates[0], dates[1]
		if hi.Before(lo) {
			lo, hi = hi, lo
		}
		keep = func(d domain.Date) bool { return !d.Before(lo) && !d.After(hi) }
	default:
		set := make(map[domain.Date]struct{}, len(dates))
		for _, d := range dates {
			set[d] = struct{}{}
		}
		keep = func(d domain.Date) bool {
			_, ok := set[d]
			return ok
		}
	}

	var out []domain.Post
	for _, p := range posts {
		if keep(p.Day()) {
			out = append(out, p)
		}
	}
	return out
}

// matchStrict returns the indexes matched by any group, in ascending order.
func matchStrict(content []string, groups [][]string) []int {
	if len(groups) == 0 {
		return nil
	}
	matched := make([]bool, len(content))
	found := false
	for _, group := range groups {
		candidates := allIndexes(len(content))
		for _, kw := range group {
			candidates = slices.DeleteFunc(candidates, func(i int) bool {
				return !strings.Contains(content[i], kw)
			})
			if len(candidates) == 0 {
				break
			}
		}
		for _, i := range candidates {
			matched[i] = true
			found = true
		}
	}
	if !found {
		return nil
	}
	return trueIndexes(matched)
}

func matchAny(content []string, keywords []string) []int {
	var hits []int
	for i, c := range content {
		if c == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(c, kw) {
				hits = append(hits, i)
				break
			}
		}
	}
	return hits
}

// foldGroups trims and folds every keyword, dropping blanks and groups left empty.
func foldGroups(folder cases.Caser, groups [][]string) [][]string {
	var out [][]string
	for _, g := range groups {
		if kws := foldKeywords(folder, g); len(kws) > 0 {
			out = append(out, kws)
		}
	}
	return out
}

func foldKeywords(folder cases.Caser, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, folder.String(kw))
	}
	return out
}

func allIndexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func trueIndexes(flags []bool) []int {
	var out []int
	for i, ok := range flags {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func pick(posts []domain.Post, idx []int) []domain.Post {
	out := make([]domain.Post, 0, len(idx))
	for _, i := range idx {
		out = append(out, posts[i])
	}
	return out
}

func sortByTime(posts []domain.Post) []domain.Post {
	slices.SortStableFunc(posts, func(a, b domain.Post) int {
		return a.PublishedAt.Compare(b.PublishedAt)
	})
	return posts
}
