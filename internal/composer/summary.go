// Package composer turns a matched result set into the bounded, structured
// payload handed to the narration model, and into the dashboard breakdowns
// rendered next to the chat.
package composer

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"github.com/ashureev/postlens/internal/dataset"
	"github.com/ashureev/postlens/internal/domain"
)

const (
	defaultTopN        = 3
	distributionLimit  = 5
	contentPreviewRune = 280
)

// Columns reports which logical columns the source dataset carried.
// *dataset.Dataset satisfies it.
type Columns interface {
	Has(dataset.Column) bool
}

type allColumns struct{}

func (allColumns) Has(dataset.Column) bool { return true }

// RateThreshold selects the statistic used to split accounts by engagement rate.
type RateThreshold string

// Rate threshold statistics.
const (
	RateMean   RateThreshold = "mean"
	RateMedian RateThreshold = "median"
)

// Options tunes Summarize. The zero value is usable.
type Options struct {
	TopN          int
	AccountMetric domain.Metric
	RateThreshold RateThreshold
	Columns       Columns
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = defaultTopN
	}
	if _, ok := domain.ParseMetric(string(o.AccountMetric)); !ok {
		o.AccountMetric = domain.MetricEngagements
	}
	if o.RateThreshold != RateMedian {
		o.RateThreshold = RateMean
	}
	if o.Columns == nil {
		o.Columns = allColumns{}
	}
	return o
}

// Summary is the structured aggregate of a matched result set. It is the
// only view of the data the narration model receives.
type Summary struct {
	Overall       Overall        `json:"overall_summary"`
	Distributions Distributions  `json:"distributions"`
	DailyTrends   *DailyTrends   `json:"daily_trends,omitempty"`
	TopContent    TopContent     `json:"top_content"`
	TopAccounts   *TopAccounts   `json:"top_accounts,omitempty"`
	Quadrant      *QuadrantStats `json:"account_performance,omitempty"`
	Omitted       []string       `json:"omitted,omitempty"`
}

// Overall carries totals and rates over every matched post.
type Overall struct {
	TotalPosts            int         `json:"total_posts"`
	TotalEngagements      float64     `json:"total_engagements"`
	TotalViews            float64     `json:"total_views"`
	TotalLikes            float64     `json:"total_likes"`
	TotalComments         float64     `json:"total_comments"`
	TotalShares           float64     `json:"total_shares"`
	AverageEngagementRate float64     `json:"average_engagement_rate"`
	OverallEngagementRate float64     `json:"overall_engagement_rate"`
	StartDate             domain.Date `json:"start_date"`
	EndDate               domain.Date `json:"end_date"`
}

// Count is a labelled post count.
type Count struct {
	Label string `json:"label"`
	Posts int    `json:"posts"`
}

// Distributions holds categorical breakdowns.
type Distributions struct {
	BySentiment []Count `json:"by_sentiment,omitempty"`
	BySource    []Count `json:"by_source,omitempty"`
	ByLocation  []Count `json:"by_location,omitempty"`
}

// DayCount is the number of posts published on one day.
type DayCount struct {
	Day   domain.Date `json:"day"`
	Posts int         `json:"posts"`
}

// DailyTrends summarizes the daily resample of the matched posts.
type DailyTrends struct {
	PeakDay       domain.Date `json:"peak_day"`
	PeakCount     int         `json:"peak_count"`
	DaysWithPosts int         `json:"days_with_posts"`
	TotalDays     int         `json:"total_days"`
}

// ContentItem is one post surfaced as top content.
type ContentItem struct {
	Account   string      `json:"account"`
	Day       domain.Date `json:"day"`
	Sentiment string      `json:"sentiment,omitempty"`
	Content   string      `json:"content"`
	Value     float64     `json:"value"`
}

// TopContent lists the strongest posts by several measures.
type TopContent struct {
	ByVirality   []ContentItem `json:"by_virality,omitempty"`
	ByEngagement []ContentItem `json:"by_engagement,omitempty"`
	ByFollowers  []ContentItem `json:"by_followers,omitempty"`
}

// AccountValue is an account with an aggregated metric value.
type AccountValue struct {
	Account string  `json:"account"`
	Value   float64 `json:"value"`
}

// TopAccounts ranks accounts by the summed metric.
type TopAccounts struct {
	Metric   domain.Metric  `json:"metric"`
	Accounts []AccountValue `json:"accounts"`
}

// Summarize aggregates posts. posts must be non-empty for a meaningful
// result; callers send NoDataNotice instead when nothing matched.
func Summarize(posts []domain.Post, opts Options) Summary {
	opts = opts.withDefaults()
	cols := opts.Columns

	var s Summary
	omit := func(section string) { s.Omitted = append(s.Omitted, section) }

	s.Overall = overall(posts)
	if !cols.Has(dataset.ColViews) || !cols.Has(dataset.ColEngagements) {
		s.Overall.AverageEngagementRate = 0
		s.Overall.OverallEngagementRate = 0
		omit("engagement_rate")
	}

	if cols.Has(dataset.ColSentiment) {
		s.Distributions.BySentiment = distribution(posts, func(p domain.Post) string { return p.Sentiment }, 0)
	} else {
		omit("by_sentiment")
	}
	if cols.Has(dataset.ColSource) {
		s.Distributions.BySource = distribution(posts, func(p domain.Post) string { return p.Source }, distributionLimit)
	} else {
		omit("by_source")
	}
	if cols.Has(dataset.ColLocation) {
		s.Distributions.ByLocation = distribution(posts, func(p domain.Post) string { return p.Location }, distributionLimit)
	} else {
		omit("by_location")
	}

	if len(posts) > 0 {
		s.DailyTrends = dailyTrends(Daily(posts))
	}

	hasFollowers := cols.Has(dataset.ColFollowers)
	hasEngagements := cols.Has(dataset.ColEngagements)
	if hasFollowers && hasEngagements {
		s.TopContent.ByVirality = topContent(posts, opts.TopN, domain.Post.ViralityRate)
	} else {
		omit("top_content.by_virality")
	}
	if hasEngagements {
		s.TopContent.ByEngagement = topContent(posts, opts.TopN, func(p domain.Post) float64 { return p.Engagements })
	} else {
		omit("top_content.by_engagement")
	}
	if hasFollowers {
		s.TopContent.ByFollowers = topContent(posts, opts.TopN, func(p domain.Post) float64 { return p.Followers })
	} else {
		omit("top_content.by_followers")
	}

	if cols.Has(dataset.ColAccount) && cols.Has(metricColumn(opts.AccountMetric)) {
		s.TopAccounts = &TopAccounts{
			Metric:   opts.AccountMetric,
			Accounts: TopAccountsBy(posts, opts.AccountMetric, opts.TopN),
		}
	} else {
		omit("top_accounts")
	}

	if cols.Has(dataset.ColAccount) && hasFollowers && hasEngagements && cols.Has(dataset.ColViews) {
		q := Quadrant(posts, opts.RateThreshold)
		s.Quadrant = &q
	} else {
		omit("account_performance")
	}
	return s
}

func overall(posts []domain.Post) Overall {
	o := Overall{TotalPosts: len(posts)}
	var rateSum float64
	for _, p := range posts {
		o.TotalEngagements += p.Engagements
		o.TotalViews += p.Views
		o.TotalLikes += p.Likes
		o.TotalComments += p.Comments
		o.TotalShares += p.Shares
		rateSum += p.EngagementRate()
	}
	if len(posts) > 0 {
		o.AverageEngagementRate = rateSum / float64(len(posts))
	}
	if o.TotalViews > 0 {
		o.OverallEngagementRate = o.TotalEngagements / o.TotalViews
	}
	o.StartDate, o.EndDate = dataset.DateRange(posts)
	return o
}

// distribution counts posts per non-empty label, largest first with ties
// broken alphabetically. limit <= 0 keeps every label.
func distribution(posts []domain.Post, label func(domain.Post) string, limit int) []Count {
	counts := make(map[string]int)
	for _, p := range posts {
		if l := label(p); l != "" {
			counts[l]++
		}
	}
	out := make([]Count, 0, len(counts))
	for l, n := range counts {
		out = append(out, Count{Label: l, Posts: n})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.Posts, a.Posts); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Daily resamples posts into one bucket per calendar day from the first to
// the last publication day, zero-filling days without posts.
func Daily(posts []domain.Post) []DayCount {
	if len(posts) == 0 {
		return nil
	}
	start, end := dataset.DateRange(posts)
	counts := make(map[domain.Date]int)
	for _, p := range posts {
		counts[p.Day()]++
	}
	var out []DayCount
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, DayCount{Day: d, Posts: counts[d]})
	}
	return out
}

func dailyTrends(days []DayCount) *DailyTrends {
	t := &DailyTrends{TotalDays: len(days)}
	for i, d := range days {
		if i == 0 || d.Posts > t.PeakCount {
			t.PeakDay, t.PeakCount = d.Day, d.Posts
		}
		if d.Posts > 0 {
			t.DaysWithPosts++
		}
	}
	return t
}

func topContent(posts []domain.Post, n int, value func(domain.Post) float64) []ContentItem {
	ranked := slices.Clone(posts)
	slices.SortStableFunc(ranked, func(a, b domain.Post) int {
		return cmp.Compare(value(b), value(a))
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]ContentItem, 0, len(ranked))
	for _, p := range ranked {
		out = append(out, ContentItem{
			Account:   p.Account,
			Day:       p.Day(),
			Sentiment: p.Sentiment,
			Content:   preview(p.Content, contentPreviewRune),
			Value:     value(p),
		})
	}
	return out
}

// TopAccountsBy ranks accounts by the summed metric, largest first.
func TopAccountsBy(posts []domain.Post, m domain.Metric, n int) []AccountValue {
	sums := make(map[string]float64)
	for _, p := range posts {
		if p.Account == "" {
			continue
		}
		sums[p.Account] += p.Value(m)
	}
	out := make([]AccountValue, 0, len(sums))
	for a, v := range sums {
		out = append(out, AccountValue{Account: a, Value: v})
	}
	slices.SortFunc(out, func(a, b AccountValue) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Account, b.Account)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func metricColumn(m domain.Metric) dataset.Column {
	switch m {
	case domain.MetricFollowers:
		return dataset.ColFollowers
	case domain.MetricViews:
		return dataset.ColViews
	case domain.MetricLikes:
		return dataset.ColLikes
	case domain.MetricComments:
		return dataset.ColComments
	case domain.MetricShares:
		return dataset.ColShares
	case domain.MetricESMR:
		return dataset.ColESMR
	default:
		return dataset.ColEngagements
	}
}

func preview(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "..."
}
