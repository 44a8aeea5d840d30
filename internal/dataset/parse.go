package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006 15:04",
	"2/1/2006",
	"02-01-2006 15:04",
	"02-01-2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// parseTimestamp reads a cell as a timestamp. Strings without a zone are
// interpreted in loc. Numeric cells are Excel serial dates.
func parseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		// Bare years and other small numbers are not dates.
		if serial < 1 || serial > 2958465 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return wallClock(t, loc), true
	}
	for _, layout := range timestampLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.In(loc), true
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// parseNumber coerces a cell to a float, yielding zero for blanks and junk.
func parseNumber(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
