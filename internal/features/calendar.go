package features

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// SnowDayCalendar is the reference list of historical snow-day dates used to
// label training rows. Membership is an exact match on the calendar date
// string; live inference never consults it.
type SnowDayCalendar struct {
	dates map[string]struct{}
}

// LoadSnowDayCalendar reads a CSV with a "date" column of YYYY-MM-DD values.
func LoadSnowDayCalendar(path string) (*SnowDayCalendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snow day calendar: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read snow day calendar: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("snow day calendar %s is empty", path)
	}

	col := -1
	for i, name := range records[0] {
		if strings.TrimSpace(strings.ToLower(name)) == "date" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("snow day calendar %s has no date column", path)
	}

	cal := &SnowDayCalendar{dates: make(map[string]struct{}, len(records)-1)}
	for _, rec := range records[1:] {
		if col >= len(rec) {
			continue
		}
		d := strings.TrimSpace(rec[col])
		if d != "" {
			cal.dates[d] = struct{}{}
		}
	}
	return cal, nil
}

// Label returns 1 when the exact date appears in the calendar, else 0.
func (c *SnowDayCalendar) Label(date string) int {
	if _, ok := c.dates[date]; ok {
		return 1
	}
	return 0
}

// Len returns the number of recorded snow days.
func (c *SnowDayCalendar) Len() int {
	return len(c.dates)
}
