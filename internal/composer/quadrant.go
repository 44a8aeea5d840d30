package composer

import (
	"cmp"
	"slices"

	"github.com/ashureev/postlens/internal/domain"
)

// minQuadrantAccounts is the fewest distinct accounts a split is computed for.
const minQuadrantAccounts = 4

// Segment is an account-performance quadrant.
type Segment string

// Segments, named by followers/rate position relative to the thresholds.
const (
	SegmentChampions    Segment = "champions"     // high followers, high rate
	SegmentHiddenGems   Segment = "hidden_gems"   // low followers, high rate
	SegmentNichePlayers Segment = "niche_players" // low followers, low rate
	SegmentMegaphones   Segment = "megaphones"    // high followers, low rate
)

// Segments lists the quadrants in display order.
var Segments = []Segment{SegmentChampions, SegmentHiddenGems, SegmentNichePlayers, SegmentMegaphones}

// AccountPerformance is one account's averaged position.
type AccountPerformance struct {
	Account        string  `json:"account"`
	Posts          int     `json:"posts"`
	Followers      float64 `json:"avg_followers"`
	EngagementRate float64 `json:"avg_engagement_rate"`
	Segment        Segment `json:"segment"`
}

// QuadrantStats is the account-performance split.
type QuadrantStats struct {
	Note               string               `json:"note,omitempty"`
	FollowersThreshold float64              `json:"followers_threshold"`
	RateThreshold      float64              `json:"engagement_rate_threshold"`
	RateStatistic      RateThreshold        `json:"engagement_rate_statistic"`
	Counts             map[Segment]int      `json:"counts,omitempty"`
	TopPerformers      map[Segment]string   `json:"top_performers,omitempty"`
	Accounts           []AccountPerformance `json:"-"`
}

// Available reports whether the split was computed.
func (q QuadrantStats) Available() bool {
	return q.Note == ""
}

// Quadrant averages followers and engagement rate per account and splits
// accounts at the median followers and the chosen rate statistic. Accounts
// sitting exactly on a threshold count as high.
func Quadrant(posts []domain.Post, stat RateThreshold) QuadrantStats {
	if stat != RateMedian {
		stat = RateMean
	}
	accounts := accountAverages(posts)
	q := QuadrantStats{RateStatistic: stat}
	if len(accounts) < minQuadrantAccounts {
		q.Note = "not enough data: at least 4 distinct accounts are needed for quadrant analysis"
		return q
	}

	followers := make([]float64, len(accounts))
	rates := make([]float64, len(accounts))
	for i, a := range accounts {
		followers[i] = a.Followers
		rates[i] = a.EngagementRate
	}
	q.FollowersThreshold = median(followers)
	if stat == RateMedian {
		q.RateThreshold = median(rates)
	} else {
		q.RateThreshold = mean(rates)
	}

	q.Counts = make(map[Segment]int, len(Segments))
	q.TopPerformers = make(map[Segment]string, len(Segments))
	best := make(map[Segment]AccountPerformance, len(Segments))
	for i := range accounts {
		a := &accounts[i]
		a.Segment = segmentOf(a.Followers >= q.FollowersThreshold, a.EngagementRate >= q.RateThreshold)
		q.Counts[a.Segment]++
		cur, seen := best[a.Segment]
		if !seen || better(a.Segment, *a, cur) {
			best[a.Segment] = *a
		}
	}
	for seg, a := range best {
		q.TopPerformers[seg] = a.Account
	}
	q.Accounts = accounts
	return q
}

func segmentOf(highFollowers, highRate bool) Segment {
	switch {
	case highFollowers && highRate:
		return SegmentChampions
	case highRate:
		return SegmentHiddenGems
	case highFollowers:
		return SegmentMegaphones
	default:
		return SegmentNichePlayers
	}
}

// better ranks high-rate segments by rate and the others by reach.
func better(seg Segment, a, b AccountPerformance) bool {
	switch seg {
	case SegmentChampions, SegmentHiddenGems:
		return a.EngagementRate > b.EngagementRate
	default:
		return a.Followers > b.Followers
	}
}

// accountAverages returns per-account means in account name order.
func accountAverages(posts []domain.Post) []AccountPerformance {
	type acc struct {
		n         int
		followers float64
		rate      float64
	}
	sums := make(map[string]*acc)
	for _, p := range posts {
		if p.Account == "" {
			continue
		}
		a, ok := sums[p.Account]
		if !ok {
			a = &acc{}
			sums[p.Account] = a
		}
		a.n++
		a.followers += p.Followers
		a.rate += p.EngagementRate()
	}
	out := make([]AccountPerformance, 0, len(sums))
	for name, a := range sums {
		out = append(out, AccountPerformance{
			Account:        name,
			Posts:          a.n,
			Followers:      a.followers / float64(a.n),
			EngagementRate: a.rate / float64(a.n),
		})
	}
	slices.SortFunc(out, func(a, b AccountPerformance) int { return cmp.Compare(a.Account, b.Account) })
	return out
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
