package chart

import (
	"fmt"
	"time"
)

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnixSeconds parses a calendar timestamp and truncates it to whole seconds:
// floor(epochMillis / 1000).
func UnixSeconds(date string) (int64, error) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, date)
		if err == nil {
			return floorDiv(t.UnixMilli(), 1000), nil
		}
	}
	return 0, fmt.Errorf("chart: unparseable date %q", date)
}

// floorDiv rounds toward negative infinity, unlike Go's truncating division.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
