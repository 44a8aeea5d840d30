// Package dataset loads the post table from a spreadsheet export.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ashureev/postlens/internal/domain"
)

var (
	// ErrMissingDateColumn is returned when no header maps to the publication date.
	ErrMissingDateColumn = errors.New("dataset has no publication date column")
	// ErrUnsupportedFormat is returned for file extensions the loader cannot read.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Options control how a dataset file is read.
type Options struct {
	// Sheet selects the XLSX sheet; empty means the first one.
	Sheet string
	// Location interprets timestamps that carry no zone. Defaults to UTC.
	Location *time.Location
}

// Dataset is the read-only working table. It is safe for concurrent readers.
type Dataset struct {
	posts    []domain.Post
	columns  map[Column]bool
	dropped  int
	source   string
	loadedAt time.Time
}

// Info describes a loaded dataset.
type Info struct {
	Source   string      `json:"source"`
	Rows     int         `json:"rows"`
	Dropped  int         `json:"dropped"`
	Columns  []Column    `json:"columns"`
	Start    domain.Date `json:"start"`
	End      domain.Date `json:"end"`
	LoadedAt time.Time   `json:"loaded_at"`
}

// Load reads an .xlsx or .csv file.
func Load(path string, opts Options) (*Dataset, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path, opts.Sheet)
	case ".csv":
		records, err = readCSVFile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	ds, err := FromRecords(records, opts.Location)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	ds.source = filepath.Base(path)
	return ds, nil
}

// New builds a dataset from already-parsed posts. All columns are reported
// as present. Intended for tests and embedding callers.
func New(posts []domain.Post) *Dataset {
	columns := make(map[Column]bool)
	for _, c := range allColumns {
		columns[c] = true
	}
	return &Dataset{posts: posts, columns: columns, loadedAt: time.Now()}
}

var allColumns = []Column{
	ColAccount, ColContent, ColPublishedAt, ColSentiment, ColTopic, ColGroup,
	ColFollowers, ColEngagements, ColViews, ColLikes, ColComments, ColShares,
	ColESMR, ColLocation, ColSource,
}

// FromRecords builds a dataset from a header row followed by data rows. Rows
// whose publication date cannot be parsed are dropped.
func FromRecords(records [][]string, loc *time.Location) (*Dataset, error) {
	if len(records) == 0 {
		return nil, errors.New("dataset is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	idx := mapHeader(records[0])
	if _, ok := idx[ColPublishedAt]; !ok {
		return nil, ErrMissingDateColumn
	}

	ds := &Dataset{columns: make(map[Column]bool, len(idx)), loadedAt: time.Now()}
	for col := range idx {
		ds.columns[col] = true
	}

	cell := func(row []string, col Column) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for _, row := range records[1:] {
		published, ok := parseTimestamp(cell(row, ColPublishedAt), loc)
		if !ok {
			ds.dropped++
			continue
		}
		ds.posts = append(ds.posts, domain.Post{
			Row:         len(ds.posts),
			Account:     cell(row, ColAccount),
			Content:     cell(row, ColContent),
			PublishedAt: published,
			Sentiment:   cell(row, ColSentiment),
			Topic:       cell(row, ColTopic),
			Group:       cell(row, ColGroup),
			Location:    cell(row, ColLocation),
			Source:      cell(row, ColSource),
			Followers:   parseNumber(cell(row, ColFollowers)),
			Engagements: parseNumber(cell(row, ColEngagements)),
			Views:       parseNumber(cell(row, ColViews)),
			Likes:       parseNumber(cell(row, ColLikes)),
			Comments:    parseNumber(cell(row, ColComments)),
			Shares:      parseNumber(cell(row, ColShares)),
			ESMR:        parseNumber(cell(row, ColESMR)),
		})
	}
	return ds, nil
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads all records from r, tolerating ragged rows.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

// Posts returns the working rows in dataset order. Callers must not modify
// the returned slice.
func (d *Dataset) Posts() []domain.Post {
	return d.posts
}

// Len returns the number of working rows.
func (d *Dataset) Len() int {
	return len(d.posts)
}

// Has reports whether the source carried the column.
func (d *Dataset) Has(col Column) bool {
	return d.columns[col]
}

// Dropped returns how many rows were excluded for an unparseable date.
func (d *Dataset) Dropped() int {
	return d.dropped
}

// Info summarizes the dataset.
func (d *Dataset) Info() Info {
	info := Info{
		Source:   d.source,
		Rows:     len(d.posts),
		Dropped:  d.dropped,
		LoadedAt: d.loadedAt,
	}
	for _, c := range allColumns {
		if d.columns[c] {
			info.Columns = append(info.Columns, c)
		}
	}
	info.Start, info.End = DateRange(d.posts)
	return info
}

// DateRange returns the earliest and latest publication days of posts.
func DateRange(posts []domain.Post) (start, end domain.Date) {
	for i, p := range posts {
		day := p.Day()
		if i == 0 || day.Before(start) {
			start = day
		}
		if i == 0 || day.After(end) {
			end = day
		}
	}
	return start, end
}
