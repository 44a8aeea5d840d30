package composer

import (
	"cmp"
	"slices"

	"github.com/ashureev/postlens/internal/dataset"
	"github.com/ashureev/postlens/internal/domain"
)

// PageSize is the number of rows per data page.
const PageSize = 20

const dashboardTopAccounts = 10

// PageQuery selects one page of matched rows.
type PageQuery struct {
	Page       int // zero-based
	Sentiments []string
	Topics     []string
}

// Row is a matched post as rendered in the data table.
type Row struct {
	domain.Post
	Virality float64 `json:"virality"`
}

// PageResult is one page of filtered rows plus the available filter values.
type PageResult struct {
	Rows       []Row    `json:"rows"`
	Page       int      `json:"page"`
	Pages      int      `json:"pages"`
	Total      int      `json:"total"`
	Sentiments []string `json:"sentiments"`
	Topics     []string `json:"topics"`
}

// Paginate filters posts by sentiment and topic and returns the requested
// page. An out-of-range page resets to the first one.
func Paginate(posts []domain.Post, q PageQuery) PageResult {
	res := PageResult{
		Sentiments: distinct(posts, func(p domain.Post) string { return p.Sentiment }),
		Topics:     distinct(posts, func(p domain.Post) string { return p.Topic }),
	}
	filtered := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if len(q.Sentiments) > 0 && !slices.Contains(q.Sentiments, p.Sentiment) {
			continue
		}
		if len(q.Topics) > 0 && !slices.Contains(q.Topics, p.Topic) {
			continue
		}
		filtered = append(filtered, p)
	}
	res.Total = len(filtered)
	res.Pages = (res.Total + PageSize - 1) / PageSize
	page := q.Page
	if page < 0 || page >= res.Pages {
		page = 0
	}
	res.Page = page

	start := page * PageSize
	end := min(start+PageSize, res.Total)
	res.Rows = make([]Row, 0, max(end-start, 0))
	for _, p := range filtered[min(start, res.Total):end] {
		res.Rows = append(res.Rows, Row{Post: p, Virality: p.ViralityRate()})
	}
	return res
}

func distinct(posts []domain.Post, label func(domain.Post) string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, p := range posts {
		l := label(p)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// LabelValue is a category with an averaged value.
type LabelValue struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// MetricLeaders ranks accounts by one summed metric.
type MetricLeaders struct {
	Metric   domain.Metric  `json:"metric"`
	Total    float64        `json:"total"`
	Accounts []AccountValue `json:"accounts"`
}

// DataScope describes what the matched rows cover.
type DataScope struct {
	Start    domain.Date `json:"start"`
	End      domain.Date `json:"end"`
	Keywords []string    `json:"keywords"`
}

// Insights is the chart data rendered alongside the chat.
type Insights struct {
	Scope             DataScope            `json:"scope"`
	Overall           Overall              `json:"overall"`
	BySentiment       []Count              `json:"by_sentiment,omitempty"`
	BySource          []Count              `json:"by_source,omitempty"`
	ByLocation        []Count              `json:"by_location,omitempty"`
	EngagementByTopic []LabelValue         `json:"engagement_by_topic,omitempty"`
	EngagementByGroup []LabelValue         `json:"engagement_by_group,omitempty"`
	Daily             []DayCount           `json:"daily,omitempty"`
	Leaders           []MetricLeaders      `json:"leaders,omitempty"`
	Quadrant          *QuadrantStats       `json:"quadrant,omitempty"`
	Accounts          []AccountPerformance `json:"accounts,omitempty"`
}

// leaderMetrics are the metrics ranked on the dashboard.
var leaderMetrics = []domain.Metric{
	domain.MetricFollowers, domain.MetricEngagements, domain.MetricESMR, domain.MetricViews, domain.MetricLikes,
}

// BuildInsights computes dashboard breakdowns for posts matched by topic.
func BuildInsights(posts []domain.Post, topic domain.Topic, opts Options) Insights {
	opts = opts.withDefaults()
	cols := opts.Columns
	in := Insights{Overall: overall(posts)}
	in.Scope.Start, in.Scope.End = in.Overall.StartDate, in.Overall.EndDate
	in.Scope.Keywords = Keywords(topic)
	if len(posts) == 0 {
		return in
	}

	if cols.Has(dataset.ColSentiment) {
		in.BySentiment = distribution(posts, func(p domain.Post) string { return p.Sentiment }, 0)
	}
	if cols.Has(dataset.ColSource) {
		in.BySource = distribution(posts, func(p domain.Post) string { return p.Source }, distributionLimit)
	}
	if cols.Has(dataset.ColLocation) {
		in.ByLocation = distribution(posts, func(p domain.Post) string { return p.Location }, distributionLimit)
	}
	if cols.Has(dataset.ColTopic) {
		in.EngagementByTopic = meanRateBy(posts, func(p domain.Post) string { return p.Topic })
	}
	if cols.Has(dataset.ColGroup) {
		in.EngagementByGroup = meanRateBy(posts, func(p domain.Post) string { return p.Group })
	}
	in.Daily = Daily(posts)

	if cols.Has(dataset.ColAccount) {
		for _, m := range leaderMetrics {
			if !cols.Has(metricColumn(m)) {
				continue
			}
			var total float64
			for _, p := range posts {
				total += p.Value(m)
			}
			in.Leaders = append(in.Leaders, MetricLeaders{
				Metric:   m,
				Total:    total,
				Accounts: TopAccountsBy(posts, m, dashboardTopAccounts),
			})
		}
		if cols.Has(dataset.ColFollowers) && cols.Has(dataset.ColViews) {
			q := Quadrant(posts, opts.RateThreshold)
			in.Quadrant = &q
			in.Accounts = q.Accounts
		}
	}
	return in
}

// meanRateBy averages per-post engagement rate per non-empty label, highest first.
func meanRateBy(posts []domain.Post, label func(domain.Post) string) []LabelValue {
	type acc struct {
		n   int
		sum float64
	}
	groups := make(map[string]*acc)
	for _, p := range posts {
		l := label(p)
		if l == "" {
			continue
		}
		a, ok := groups[l]
		if !ok {
			a = &acc{}
			groups[l] = a
		}
		a.n++
		a.sum += p.EngagementRate()
	}
	out := make([]LabelValue, 0, len(groups))
	for l, a := range groups {
		out = append(out, LabelValue{Label: l, Value: a.sum / float64(a.n)})
	}
	slices.SortFunc(out, func(a, b LabelValue) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}
