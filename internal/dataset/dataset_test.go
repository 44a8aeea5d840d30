package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/ashureev/postlens/internal/domain"
)

const sampleCSV = `AKUN,KONTEN,TANGGAL PUBLIKASI,SENTIMEN,TOPIK,FOLLOWERS,ENGAGEMENTS,VIEWS,REACTIONS
alpha,Prabowo di istana,2025-08-18 09:00:00,Positive,Politik,1000,50,500,40
beta,harga beras,not a date,Negative,Ekonomi,10,1,2,3
gamma,Presiden berpidato,2025-08-19,Neutral,Politik,abc,,1e3,7
`

func TestFromRecordsCSV(t *testing.T) {
	t.Parallel()

	records, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	loc := time.FixedZone("WIB", 7*3600)
	ds, err := FromRecords(records, loc)
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}

	if ds.Len() != 2 || ds.Dropped() != 1 {
		t.Fatalf("rows=%d dropped=%d, want 2 and 1", ds.Len(), ds.Dropped())
	}
	first := ds.Posts()[0]
	if first.Account != "alpha" || first.Likes != 40 || first.Views != 500 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if got := first.PublishedAt; !got.Equal(time.Date(2025, 8, 18, 9, 0, 0, 0, loc)) {
		t.Fatalf("published_at = %v", got)
	}

	second := ds.Posts()[1]
	if second.Row != 1 {
		t.Fatalf("row ids should be dense, got %d", second.Row)
	}
	if second.Followers != 0 || second.Engagements != 0 || second.Views != 1000 {
		t.Fatalf("numeric coercion failed: %+v", second)
	}

	if !ds.Has(ColLikes) || ds.Has(ColLocation) || ds.Has(ColSource) {
		t.Fatal("column presence not tracked")
	}
	info := ds.Info()
	if info.Start != domain.MustDate("2025-08-18") || info.End != domain.MustDate("2025-08-19") {
		t.Fatalf("date range = %s..%s", info.Start, info.End)
	}
}

func TestFromRecordsRequiresDateColumn(t *testing.T) {
	t.Parallel()

	_, err := FromRecords([][]string{{"AKUN", "KONTEN"}, {"a", "b"}}, nil)
	if !errors.Is(err, ErrMissingDateColumn) {
		t.Fatalf("expected ErrMissingDateColumn, got %v", err)
	}
}

func TestHeaderAliases(t *testing.T) {
	t.Parallel()

	idx := mapHeader([]string{"\ufeffaccount", " published_at ", "Content", "LIKES", "REACTIONS"})
	want := map[Column]int{ColAccount: 0, ColPublishedAt: 1, ColContent: 2, ColLikes: 3}
	if diff := cmp.Diff(want, idx); diff != "" {
		t.Fatalf("header mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("WIB", 7*3600)
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2025-08-18 09:30:00", time.Date(2025, 8, 18, 9, 30, 0, 0, loc), true},
		{"2025-08-18", time.Date(2025, 8, 18, 0, 0, 0, 0, loc), true},
		{"18/08/2025", time.Date(2025, 8, 18, 0, 0, 0, 0, loc), true},
		{"2025-08-18T02:00:00Z", time.Date(2025, 8, 18, 9, 0, 0, 0, loc), true},
		{"45887.5", time.Date(2025, 8, 18, 12, 0, 0, 0, loc), true},
		{"", time.Time{}, false},
		{"kemarin", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseTimestamp(tt.raw, loc)
		if ok != tt.ok {
			t.Fatalf("%q: ok=%v, want %v", tt.raw, ok, tt.ok)
		}
		if ok && !got.Truncate(time.Minute).Equal(tt.want) {
			t.Fatalf("%q: got %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestLoadXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "posts.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"AKUN", "KONTEN", "TANGGAL PUBLIKASI", "SENTIMEN", "VIEWS", "LOKASI", "SUMBER"},
		{"alpha", "Prabowo", "2025-08-18 09:00:00", "Positive", 120, "Jakarta", "Instagram"},
		{"beta", "Presiden", "", "Neutral", 5, "Bandung", "TikTok"},
		{"gamma", "Presiden", "2025-08-20 10:00:00", "Negative", 7, "Jakarta", "X"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	_ = f.Close()

	ds, err := Load(path, Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Len() != 2 || ds.Dropped() != 1 {
		t.Fatalf("rows=%d dropped=%d", ds.Len(), ds.Dropped())
	}
	if p := ds.Posts()[0]; p.Views != 120 || p.Location != "Jakarta" || p.Source != "Instagram" {
		t.Fatalf("unexpected row: %+v", p)
	}
	if !ds.Has(ColSource) || ds.Has(ColFollowers) {
		t.Fatal("column presence not tracked")
	}
	if ds.Info().Source != "posts.xlsx" {
		t.Fatalf("source = %q", ds.Info().Source)
	}
}

func TestLoadCSVFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "posts.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	ds, err := Load(path, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("rows = %d", ds.Len())
	}
}

func TestLoadUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := Load("data.json", Options{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
