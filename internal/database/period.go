package database

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Period is an inclusive range of calendar days.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GetToday returns today's date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format(dateLayout)
}

// ParsePeriod validates start and end dates. An empty end means start.
func ParsePeriod(start, end string) (Period, error) {
	if end == "" {
		end = start
	}
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return Period{}, fmt.Errorf("invalid start date %q: want YYYY-MM-DD", start)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return Period{}, fmt.Errorf("invalid end date %q: want YYYY-MM-DD", end)
	}
	if e.Before(s) {
		return Period{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return Period{Start: start, End: end}, nil
}

// LastDays returns the period of n days ending today.
func LastDays(n int) Period {
	now := time.Now()
	return Period{
		Start: now.AddDate(0, 0, -(n - 1)).Format(dateLayout),
		End:   now.Format(dateLayout),
	}
}

// ID returns "2026-02-06" for a single day, otherwise "2026-02-01..2026-02-06".
func (p Period) ID() string {
	if p.Start == p.End {
		return p.Start
	}
	return p.Start + ".." + p.End
}

// Display formats the period for humans.
// Single day: "Feb 06, 2026"
// Range: "Feb 01 - Feb 06, 2026"
func (p Period) Display() string {
	start, err := time.Parse(dateLayout, p.Start)
	if err != nil {
		return p.ID()
	}
	end, err := time.Parse(dateLayout, p.End)
	if err != nil {
		return p.ID()
	}
	if p.Start == p.End {
		return start.Format("Jan 02, 2006")
	}
	return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
}
