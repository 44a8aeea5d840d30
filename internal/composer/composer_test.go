package composer

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/postlens/internal/dataset"
	"github.com/ashureev/postlens/internal/domain"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func at(day string) time.Time {
	d := domain.MustDate(day)
	return time.Date(d.Year, d.Month, d.Day, 9, 0, 0, 0, jakarta)
}

// quadrantFixture has one account per segment.
func quadrantFixture() []domain.Post {
	return []domain.Post{
		{Row: 0, Account: "alpha", PublishedAt: at("2025-08-18"), Sentiment: "Positive", Source: "X", Followers: 1000, Views: 100, Engagements: 10, Content: "alpha post"},
		{Row: 1, Account: "bravo", PublishedAt: at("2025-08-18"), Sentiment: "Negative", Source: "X", Followers: 100, Views: 100, Engagements: 20, Content: "bravo post"},
		{Row: 2, Account: "charlie", PublishedAt: at("2025-08-20"), Sentiment: "Positive", Source: "Instagram", Followers: 50, Views: 100, Engagements: 1, Content: "charlie post"},
		{Row: 3, Account: "delta", PublishedAt: at("2025-08-20"), Sentiment: "Neutral", Source: "X", Followers: 2000, Views: 100, Engagements: 2, Content: "delta post"},
	}
}

type missing map[dataset.Column]bool

func (m missing) Has(c dataset.Column) bool { return !m[c] }

func TestSummarizeOverall(t *testing.T) {
	t.Parallel()

	s := Summarize(quadrantFixture(), Options{})
	o := s.Overall
	if o.TotalPosts != 4 || o.TotalEngagements != 33 || o.TotalViews != 400 {
		t.Fatalf("overall = %+v", o)
	}
	if got, want := o.OverallEngagementRate, 33.0/400; got != want {
		t.Fatalf("overall rate = %v, want %v", got, want)
	}
	if got, want := o.AverageEngagementRate, (0.1+0.2+0.01+0.02)/4; fmt.Sprintf("%.6f", got) != fmt.Sprintf("%.6f", want) {
		t.Fatalf("average rate = %v, want %v", got, want)
	}
	if o.StartDate != domain.MustDate("2025-08-18") || o.EndDate != domain.MustDate("2025-08-20") {
		t.Fatalf("range = %s..%s", o.StartDate, o.EndDate)
	}
	if len(s.Omitted) != 0 {
		t.Fatalf("omitted = %v, want none", s.Omitted)
	}
}

func TestSummarizeZeroViews(t *testing.T) {
	t.Parallel()

	posts := []domain.Post{{Account: "a", PublishedAt: at("2025-08-18"), Engagements: 5}}
	s := Summarize(posts, Options{})
	if s.Overall.AverageEngagementRate != 0 || s.Overall.OverallEngagementRate != 0 {
		t.Fatalf("rates = %+v, want zero", s.Overall)
	}
}

func TestSummarizeDistributions(t *testing.T) {
	t.Parallel()

	s := Summarize(quadrantFixture(), Options{})
	want := []Count{{"Positive", 2}, {"Negative", 1}, {"Neutral", 1}}
	if diff := cmp.Diff(want, s.Distributions.BySentiment); diff != "" {
		t.Fatalf("sentiment (-want +got):\n%s", diff)
	}
	wantSource := []Count{{"X", 3}, {"Instagram", 1}}
	if diff := cmp.Diff(wantSource, s.Distributions.BySource); diff != "" {
		t.Fatalf("source (-want +got):\n%s", diff)
	}
}

func TestDistributionLimit(t *testing.T) {
	t.Parallel()

	var posts []domain.Post
	for i := range 8 {
		for range i + 1 {
			posts = append(posts, domain.Post{Location: fmt.Sprintf("city-%d", i)})
		}
	}
	got := distribution(posts, func(p domain.Post) string { return p.Location }, distributionLimit)
	if len(got) != distributionLimit {
		t.Fatalf("len = %d, want %d", len(got), distributionLimit)
	}
	if got[0].Label != "city-7" || got[0].Posts != 8 {
		t.Fatalf("first = %+v", got[0])
	}
}

func TestDailyTrends(t *testing.T) {
	t.Parallel()

	s := Summarize(quadrantFixture(), Options{})
	want := &DailyTrends{
		PeakDay:       domain.MustDate("2025-08-18"),
		PeakCount:     2,
		DaysWithPosts: 2,
		TotalDays:     3,
	}
	if diff := cmp.Diff(want, s.DailyTrends); diff != "" {
		t.Fatalf("daily trends (-want +got):\n%s", diff)
	}

	days := Daily(quadrantFixture())
	if len(days) != 3 || days[1].Posts != 0 {
		t.Fatalf("daily = %+v, want zero-filled middle day", days)
	}
}

func TestTopContentAndAccounts(t *testing.T) {
	t.Parallel()

	s := Summarize(quadrantFixture(), Options{TopN: 2, AccountMetric: domain.MetricFollowers})
	if len(s.TopContent.ByEngagement) != 2 || s.TopContent.ByEngagement[0].Account != "bravo" {
		t.Fatalf("by engagement = %+v", s.TopContent.ByEngagement)
	}
	if s.TopContent.ByVirality[0].Account != "bravo" || s.TopContent.ByVirality[0].Value != 0.2 {
		t.Fatalf("by virality = %+v", s.TopContent.ByVirality)
	}
	want := &TopAccounts{
		Metric:   domain.MetricFollowers,
		Accounts: []AccountValue{{"delta", 2000}, {"alpha", 1000}},
	}
	if diff := cmp.Diff(want, s.TopAccounts); diff != "" {
		t.Fatalf("top accounts (-want +got):\n%s", diff)
	}
}

func TestContentPreviewTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", contentPreviewRune+10)
	got := preview(long, contentPreviewRune)
	if want := strings.Repeat("é", contentPreviewRune) + "..."; got != want {
		t.Fatalf("preview length = %d runes", len([]rune(got)))
	}
	if preview("short", contentPreviewRune) != "short" {
		t.Fatal("short content must be kept as is")
	}
}

func TestQuadrantSegments(t *testing.T) {
	t.Parallel()

	for _, stat := range []RateThreshold{RateMean, RateMedian} {
		q := Quadrant(quadrantFixture(), stat)
		if !q.Available() {
			t.Fatalf("%s: quadrant unavailable: %s", stat, q.Note)
		}
		if q.FollowersThreshold != 550 {
			t.Fatalf("%s: followers threshold = %v, want 550", stat, q.FollowersThreshold)
		}
		want := map[Segment]string{
			SegmentChampions:    "alpha",
			SegmentHiddenGems:   "bravo",
			SegmentNichePlayers: "charlie",
			SegmentMegaphones:   "delta",
		}
		if diff := cmp.Diff(want, q.TopPerformers); diff != "" {
			t.Fatalf("%s: top performers (-want +got):\n%s", stat, diff)
		}
		for _, seg := range Segments {
			if q.Counts[seg] != 1 {
				t.Fatalf("%s: count[%s] = %d, want 1", stat, seg, q.Counts[seg])
			}
		}
	}
}

func TestQuadrantThresholdStatistic(t *testing.T) {
	t.Parallel()

	byMean := Quadrant(quadrantFixture(), RateMean)
	byMedian := Quadrant(quadrantFixture(), RateMedian)
	if fmt.Sprintf("%.4f", byMean.RateThreshold) != "0.0825" {
		t.Fatalf("mean threshold = %v", byMean.RateThreshold)
	}
	if fmt.Sprintf("%.4f", byMedian.RateThreshold) != "0.0600" {
		t.Fatalf("median threshold = %v", byMedian.RateThreshold)
	}
	if got := Quadrant(quadrantFixture(), "bogus").RateStatistic; got != RateMean {
		t.Fatalf("statistic = %s, want mean", got)
	}
}

func TestQuadrantNeedsFourAccounts(t *testing.T) {
	t.Parallel()

	posts := quadrantFixture()[:3]
	posts = append(posts, domain.Post{Account: "alpha", PublishedAt: at("2025-08-18")})
	q := Quadrant(posts, RateMean)
	if q.Available() {
		t.Fatal("quadrant with three accounts must carry a note")
	}
	if q.Counts != nil || q.TopPerformers != nil {
		t.Fatalf("unexpected split: %+v", q)
	}
}

func TestSummarizeOmitsMissingColumns(t *testing.T) {
	t.Parallel()

	s := Summarize(quadrantFixture(), Options{Columns: missing{
		dataset.ColSentiment: true,
		dataset.ColFollowers: true,
	}})
	want := []string{"by_sentiment", "top_content.by_virality", "top_content.by_followers", "account_performance"}
	if diff := cmp.Diff(want, s.Omitted); diff != "" {
		t.Fatalf("omitted (-want +got):\n%s", diff)
	}
	if s.Distributions.BySentiment != nil || s.Quadrant != nil {
		t.Fatal("omitted sections must be empty")
	}
	if s.TopContent.ByEngagement == nil {
		t.Fatal("engagement ranking does not need followers")
	}
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	got := Keywords(domain.Topic{
		StrictGroups:     [][]string{{"Presiden", "Prabowo"}, {"Prabowo"}},
		FallbackKeywords: []string{" Prabowo ", "", "Gerindra"},
	})
	want := []string{"Gerindra", "Prabowo", "Presiden"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("keywords (-want +got):\n%s", diff)
	}
}

func TestDataContext(t *testing.T) {
	t.Parallel()

	summary := Summarize(quadrantFixture(), Options{})
	topic := domain.Topic{StrictGroups: [][]string{{"Presiden"}, {"Prabowo"}}}
	ctx, err := DataContext(LangIndonesian, topic, summary)
	if err != nil {
		t.Fatalf("DataContext: %v", err)
	}
	for _, want := range []string{"**Prabowo, Presiden**", "Do NOT use HTML", "\"overall_summary\"", "Indonesian"} {
		if !strings.Contains(ctx, want) {
			t.Errorf("context missing %q", want)
		}
	}
	if strings.Contains(ctx, `"row":`) {
		t.Error("context leaks raw rows")
	}

	dateOnly, err := DataContext(LangEnglish, domain.Topic{}, summary)
	if err != nil {
		t.Fatalf("DataContext: %v", err)
	}
	if !strings.Contains(dateOnly, "filtered by date only") || !strings.Contains(dateOnly, "English") {
		t.Fatalf("date-only context = %q", dateOnly)
	}
}

func TestNoDataContext(t *testing.T) {
	t.Parallel()

	dates := []domain.Date{domain.MustDate("2025-08-18")}
	notice := NoDataNotice(domain.Topic{FallbackKeywords: []string{"beras"}}, dates)
	ctx, err := NoDataContext(LangIndonesian, "harga beras 18 agustus", notice)
	if err != nil {
		t.Fatalf("NoDataContext: %v", err)
	}
	for _, want := range []string{"ZERO", "**beras**", "2025-08-18", `"harga beras 18 agustus"`} {
		if !strings.Contains(ctx, want) {
			t.Errorf("context missing %q", want)
		}
	}

	raw, err := json.Marshal(notice)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"dates":["2025-08-18"]`) {
		t.Fatalf("notice = %s", raw)
	}
}

func TestChatterContextAndConversation(t *testing.T) {
	t.Parallel()

	sys := ChatterContext(LangIndonesian)
	if !strings.Contains(sys, "Do not invent data") {
		t.Fatalf("chatter context = %q", sys)
	}
	history := []domain.Message{{Role: domain.RoleUser, Content: "halo"}}
	msgs := Conversation(sys, history)
	if len(msgs) != 2 || msgs[0].Role != domain.RoleSystem || msgs[1] != history[0] {
		t.Fatalf("conversation = %+v", msgs)
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()

	id := Messages(LangIndonesian)
	if id.AskForDate != "Tentu, saya bisa carikan datanya. Mohon informasikan tanggal atau rentang tanggal spesifik yang Anda inginkan." {
		t.Fatalf("ask for date = %q", id.AskForDate)
	}
	if Messages("fr") != id {
		t.Fatal("unknown language must fall back to Indonesian")
	}
	if Messages(LangEnglish).NarrationFailed == id.NarrationFailed {
		t.Fatal("english catalog must differ")
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	var posts []domain.Post
	for i := range 45 {
		sentiment := "Positive"
		if i%3 == 0 {
			sentiment = "Negative"
		}
		posts = append(posts, domain.Post{Row: i, Sentiment: sentiment, Topic: "Politik", Followers: 10, Engagements: 5})
	}

	last := Paginate(posts, PageQuery{Page: 2})
	if last.Total != 45 || last.Pages != 3 || len(last.Rows) != 5 || last.Rows[0].Row != 40 {
		t.Fatalf("page 2 = total %d pages %d rows %d", last.Total, last.Pages, len(last.Rows))
	}
	if last.Rows[0].Virality != 0.5 {
		t.Fatalf("virality = %v", last.Rows[0].Virality)
	}

	reset := Paginate(posts, PageQuery{Page: 9})
	if reset.Page != 0 || reset.Rows[0].Row != 0 {
		t.Fatalf("out of range page = %d", reset.Page)
	}

	neg := Paginate(posts, PageQuery{Sentiments: []string{"Negative"}})
	if neg.Total != 15 || neg.Pages != 1 {
		t.Fatalf("negative filter total = %d", neg.Total)
	}
	if diff := cmp.Diff([]string{"Negative", "Positive"}, neg.Sentiments); diff != "" {
		t.Fatalf("sentiments (-want +got):\n%s", diff)
	}

	none := Paginate(posts, PageQuery{Topics: []string{"Ekonomi"}})
	if none.Total != 0 || none.Pages != 0 || len(none.Rows) != 0 {
		t.Fatalf("empty filter = %+v", none)
	}
}

func TestBuildInsights(t *testing.T) {
	t.Parallel()

	posts := quadrantFixture()
	posts[0].Topic, posts[1].Topic, posts[2].Topic, posts[3].Topic = "Politik", "Politik", "Ekonomi", "Ekonomi"
	in := BuildInsights(posts, domain.Topic{FallbackKeywords: []string{"x"}}, Options{})

	if in.Scope.Start != domain.MustDate("2025-08-18") || len(in.Scope.Keywords) != 1 {
		t.Fatalf("scope = %+v", in.Scope)
	}
	if len(in.EngagementByTopic) != 2 || in.EngagementByTopic[0].Label != "Politik" {
		t.Fatalf("engagement by topic = %+v", in.EngagementByTopic)
	}
	if len(in.Leaders) != len(leaderMetrics) {
		t.Fatalf("leaders = %d, want %d", len(in.Leaders), len(leaderMetrics))
	}
	if in.Leaders[0].Metric != domain.MetricFollowers || in.Leaders[0].Total != 3150 {
		t.Fatalf("followers leader = %+v", in.Leaders[0])
	}
	if len(in.Accounts) != 4 || in.Quadrant == nil {
		t.Fatal("quadrant accounts missing")
	}
	if len(in.Daily) != 3 {
		t.Fatalf("daily = %d buckets", len(in.Daily))
	}

	empty := BuildInsights(nil, domain.Topic{}, Options{})
	if empty.Overall.TotalPosts != 0 || empty.Daily != nil {
		t.Fatalf("empty insights = %+v", empty)
	}
}
