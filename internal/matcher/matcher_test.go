package matcher

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/postlens/internal/domain"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func post(row int, day string, hour int, content string) domain.Post {
	d := domain.MustDate(day)
	return domain.Post{
		Row:         row,
		Account:     "acct",
		Content:     content,
		PublishedAt: time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, jakarta),
	}
}

func rows(posts []domain.Post) []int {
	out := make([]int, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Row)
	}
	return out
}

func fixture() []domain.Post {
	return []domain.Post{
		post(0, "2025-08-18", 9, "Prabowo meresmikan jembatan"),
		post(1, "2025-08-18", 8, "Presiden berpidato di istana"),
		post(2, "2025-08-18", 10, "PRABOWO bertemu menteri"),
		post(3, "2025-08-18", 7, "Kunjungan Presiden ke Bandung"),
		post(4, "2025-08-18", 11, "prabowo dan kabinet"),
		post(5, "2025-08-19", 9, "Prabowo di Jakarta"),
		post(6, "2025-08-10", 9, "harga beras naik"),
		post(7, "2025-08-20", 9, "harga beras turun"),
		post(8, "2025-08-15", 9, ""),
	}
}

func TestMatchUnionAcrossGroups(t *testing.T) {
	t.Parallel()

	res := Match(fixture(), Query{
		StrictGroups: [][]string{{"Prabowo"}, {"Presiden"}},
		Dates:        []domain.Date{domain.MustDate("2025-08-18")},
	})
	if res.Tier != TierStrict {
		t.Fatalf("tier = %s, want strict", res.Tier)
	}
	want := []int{3, 1, 0, 2, 4}
	if diff := cmp.Diff(want, rows(res.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	for _, p := range res.Posts {
		if p.Day() != domain.MustDate("2025-08-18") {
			t.Fatalf("row %d outside date scope", p.Row)
		}
	}
}

func TestMatchDeduplicatesOverlappingGroups(t *testing.T) {
	t.Parallel()

	posts := []domain.Post{
		post(0, "2025-08-18", 9, "Prabowo Presiden"),
		post(1, "2025-08-18", 10, "Presiden saja"),
	}
	res := Match(posts, Query{StrictGroups: [][]string{{"prabowo"}, {"presiden"}}})
	if diff := cmp.Diff([]int{0, 1}, rows(res.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchAndWithinGroup(t *testing.T) {
	t.Parallel()

	posts := fixture()
	a := Match(posts, Query{StrictGroups: [][]string{{"harga", "beras", "naik"}}})
	b := Match(posts, Query{StrictGroups: [][]string{{"naik", "harga", "beras"}}})
	if diff := cmp.Diff([]int{6}, rows(a.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rows(a.Posts), rows(b.Posts)); diff != "" {
		t.Fatalf("keyword order changed result:\n%s", diff)
	}
}

func TestMatchFallbackOnlyWhenStrictEmpty(t *testing.T) {
	t.Parallel()

	posts := fixture()
	res := Match(posts, Query{
		StrictGroups:     [][]string{{"xyz-nonexistent"}},
		FallbackKeywords: []string{"Prabowo"},
	})
	if res.Tier != TierFallback {
		t.Fatalf("tier = %s, want fallback", res.Tier)
	}
	if diff := cmp.Diff([]int{0, 2, 4, 5}, rows(res.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	// A broad fallback must not widen a non-empty strict result.
	res = Match(posts, Query{
		StrictGroups:     [][]string{{"beras", "turun"}},
		FallbackKeywords: []string{"a", "e", "i"},
	})
	if diff := cmp.Diff([]int{7}, rows(res.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchNoKeywordsReturnsDateScope(t *testing.T) {
	t.Parallel()

	res := Match(fixture(), Query{Dates: []domain.Date{domain.MustDate("2025-08-18")}})
	if res.Tier != TierDateOnly {
		t.Fatalf("tier = %s, want date_only", res.Tier)
	}
	if diff := cmp.Diff([]int{3, 1, 0, 2, 4}, rows(res.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchBlankGroupsContributeNothing(t *testing.T) {
	t.Parallel()

	res := Match(fixture(), Query{
		StrictGroups:     [][]string{{"  ", ""}, {"beras"}},
		FallbackKeywords: []string{" "},
	})
	if diff := cmp.Diff([]int{6, 7}, rows(res.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchOnlyBlankKeywordsMatchesNothing(t *testing.T) {
	t.Parallel()

	for _, q := range []Query{
		{StrictGroups: [][]string{{"  ", ""}}},
		{FallbackKeywords: []string{" "}},
		{StrictGroups: [][]string{{}}, FallbackKeywords: []string{""}},
	} {
		q.Dates = []domain.Date{domain.MustDate("2025-08-18")}
		res := Match(fixture(), q)
		if res.Tier != TierNone || len(res.Posts) != 0 || res.Scoped != 5 {
			t.Fatalf("query %+v: tier=%s rows=%v scoped=%d, want no rows", q, res.Tier, rows(res.Posts), res.Scoped)
		}
	}
}

func TestMatchEmptyDateScopeShortCircuits(t *testing.T) {
	t.Parallel()

	res := Match(fixture(), Query{
		FallbackKeywords: []string{"Prabowo"},
		Dates:            []domain.Date{domain.MustDate("2024-01-01")},
	})
	if len(res.Posts) != 0 || res.Tier != TierNone || res.Scoped != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestMatchNothingFound(t *testing.T) {
	t.Parallel()

	res := Match(fixture(), Query{StrictGroups: [][]string{{"nothing"}}, FallbackKeywords: []string{"nada"}})
	if len(res.Posts) != 0 || res.Tier != TierNone {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestFilterDates(t *testing.T) {
	t.Parallel()

	posts := fixture()
	tests := []struct {
		name  string
		dates []string
		want  []int
	}{
		{"none", nil, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}},
		{"single", []string{"2025-08-19"}, []int{5}},
		{"range", []string{"2025-08-10", "2025-08-18"}, []int{0, 1, 2, 3, 4, 6, 8}},
		{"reversed range", []string{"2025-08-18", "2025-08-10"}, []int{0, 1, 2, 3, 4, 6, 8}},
		{"set", []string{"2025-08-10", "2025-08-20", "2025-08-19"}, []int{5, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dates []domain.Date
			for _, s := range tt.dates {
				dates = append(dates, domain.MustDate(s))
			}
			got := rows(FilterDates(posts, dates))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchReversedRangeEquivalent(t *testing.T) {
	t.Parallel()

	posts := fixture()
	forward := Match(posts, Query{
		FallbackKeywords: []string{"harga"},
		Dates:            []domain.Date{domain.MustDate("2025-08-10"), domain.MustDate("2025-08-20")},
	})
	reversed := Match(posts, Query{
		FallbackKeywords: []string{"harga"},
		Dates:            []domain.Date{domain.MustDate("2025-08-20"), domain.MustDate("2025-08-10")},
	})
	if diff := cmp.Diff(rows(forward.Posts), rows(reversed.Posts)); diff != "" {
		t.Fatalf("reversed range differs:\n%s", diff)
	}
	if diff := cmp.Diff([]int{6, 7}, rows(forward.Posts)); diff != "" {
		t.Fatalf("range should be inclusive:\n%s", diff)
	}
}

func TestMatchIdempotent(t *testing.T) {
	t.Parallel()

	posts := fixture()
	q := Query{StrictGroups: [][]string{{"presiden"}, {"prabowo"}}}
	first := Match(posts, q)
	second := Match(posts, q)
	if diff := cmp.Diff(first.Posts, second.Posts); diff != "" {
		t.Fatalf("repeat call differs:\n%s", diff)
	}
	if rows(posts)[0] != 0 || posts[1].Row != 1 {
		t.Fatal("input slice was reordered")
	}
}

func TestMatchUnicodeFolding(t *testing.T) {
	t.Parallel()

	posts := []domain.Post{
		post(0, "2025-08-18", 9, "STRASSE gesperrt"),
		post(1, "2025-08-18", 9, "Ünïcode ÇAFÉ"),
	}
	res := Match(posts, Query{StrictGroups: [][]string{{"ünïcode", "çafé"}}})
	if diff := cmp.Diff([]int{1}, rows(res.Posts)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}
