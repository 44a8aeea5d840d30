package dataset

import (
	"strings"
)

// Column identifies a logical dataset field independent of header spelling.
type Column string

// Logical columns.
const (
	ColAccount     Column = "account"
	ColContent     Column = "content"
	ColPublishedAt Column = "published_at"
	ColSentiment   Column = "sentiment"
	ColTopic       Column = "topic"
	ColGroup       Column = "group"
	ColFollowers   Column = "followers"
	ColEngagements Column = "engagements"
	ColViews       Column = "views"
	ColLikes       Column = "likes"
	ColComments    Column = "comments"
	ColShares      Column = "shares"
	ColESMR        Column = "esmr"
	ColLocation    Column = "location"
	ColSource      Column = "source"
)

// headerAliases maps normalized header text to a logical column. The
// Indonesian headers are the canonical export format.
var headerAliases = map[string]Column{
	"AKUN":              ColAccount,
	"ACCOUNT":           ColAccount,
	"AUTHOR":            ColAccount,
	"USERNAME":          ColAccount,
	"KONTEN":            ColContent,
	"CONTENT":           ColContent,
	"TEXT":              ColContent,
	"TANGGAL PUBLIKASI": ColPublishedAt,
	"TANGGAL":           ColPublishedAt,
	"PUBLISHED AT":      ColPublishedAt,
	"PUBLISH DATE":      ColPublishedAt,
	"DATE":              ColPublishedAt,
	"SENTIMEN":          ColSentiment,
	"SENTIMENT":         ColSentiment,
	"TOPIK":             ColTopic,
	"TOPIC":             ColTopic,
	"GRUP":              ColGroup,
	"GROUP":             ColGroup,
	"FOLLOWERS":         ColFollowers,
	"ENGAGEMENTS":       ColEngagements,
	"ENGAGEMENT":        ColEngagements,
	"VIEWS":             ColViews,
	"LIKES":             ColLikes,
	"REACTIONS":         ColLikes,
	"COMMENTS":          ColComments,
	"SHARES":            ColShares,
	"ESMR":              ColESMR,
	"LOKASI":            ColLocation,
	"LOCATION":          ColLocation,
	"SUMBER":            ColSource,
	"SOURCE":            ColSource,
}

func normalizeHeader(h string) string {
	h = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.ReplaceAll(h, "_", " ")
	return strings.Join(strings.Fields(h), " ")
}

// mapHeader resolves header cells to column positions. The first header that
// maps to a column wins.
func mapHeader(header []string) map[Column]int {
	idx := make(map[Column]int)
	for i, h := range header {
		col, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := idx[col]; !seen {
			idx[col] = i
		}
	}
	return idx
}
