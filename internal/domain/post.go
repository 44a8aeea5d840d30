package domain

import (
	"time"
)

// Sentiment labels used by the dataset.
const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// Post is one row of the working dataset.
//
// Numeric metrics are never absent: the loader coerces missing or unparseable
// values to zero. Optional text fields are empty when the column is missing.
type Post struct {
	Row         int       `json:"row"`
	Account     string    `json:"account"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
	Sentiment   string    `json:"sentiment,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	Group       string    `json:"group,omitempty"`
	Location    string    `json:"location,omitempty"`
	Source      string    `json:"source,omitempty"`
	Followers   float64   `json:"followers"`
	Engagements float64   `json:"engagements"`
	Views       float64   `json:"views"`
	Likes       float64   `json:"likes"`
	Comments    float64   `json:"comments"`
	Shares      float64   `json:"shares"`
	ESMR        float64   `json:"esmr"`
}

// Day returns the calendar day the post was published on, in the location
// carried by PublishedAt.
func (p Post) Day() Date {
	return DateOf(p.PublishedAt)
}

// EngagementRate is engagements divided by views, zero when views is zero.
func (p Post) EngagementRate() float64 {
	if p.Views <= 0 {
		return 0
	}
	return p.Engagements / p.Views
}

// ViralityRate is engagements divided by followers, zero when followers is zero.
func (p Post) ViralityRate() float64 {
	if p.Followers <= 0 {
		return 0
	}
	return p.Engagements / p.Followers
}

// Metric names a numeric post column.
type Metric string

// Supported metrics.
const (
	MetricFollowers   Metric = "followers"
	MetricEngagements Metric = "engagements"
	MetricViews       Metric = "views"
	MetricLikes       Metric = "likes"
	MetricComments    Metric = "comments"
	MetricShares      Metric = "shares"
	MetricESMR        Metric = "esmr"
)

// Metrics lists every metric in display order.
var Metrics = []Metric{
	MetricFollowers, MetricEngagements, MetricESMR, MetricViews, MetricLikes, MetricComments, MetricShares,
}

// ParseMetric resolves a metric name, reporting false for unknown names.
func ParseMetric(s string) (Metric, bool) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Value returns the post's value for the metric.
func (p Post) Value(m Metric) float64 {
	switch m {
	case MetricFollowers:
		return p.Followers
	case MetricEngagements:
		return p.Engagements
	case MetricViews:
		return p.Views
	case MetricLikes:
		return p.Likes
	case MetricComments:
		return p.Comments
	case MetricShares:
		return p.Shares
	case MetricESMR:
		return p.ESMR
	default:
		return 0
	}
}
