package index

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDate parses the imagery index date format, a year with optional
// month and day ("2012", "2012-03", "2012-03-04"), into ms since the
// epoch. End dates resolve to the last instant of the stated period so an
// open month or year stays valid until it is over.
func ParseDate(s string, end bool) (int64, error) {
	fields := strings.SplitN(s, "-", 3)
	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	month, day := 1, 1
	if len(fields) > 1 {
		if month, err = strconv.Atoi(fields[1]); err != nil {
			return 0, fmt.Errorf("invalid date %q: %w", s, err)
		}
		if month < 1 || month > 12 {
			return 0, fmt.Errorf("invalid date %q: month out of range", s)
		}
	}
	if len(fields) > 2 {
		if day, err = strconv.Atoi(fields[2]); err != nil {
			return 0, fmt.Errorf("invalid date %q: %w", s, err)
		}
		if day < 1 || day > 31 {
			return 0, fmt.Errorf("invalid date %q: day out of range", s)
		}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// time.Date would normalize "2023-02-31" into March
		return 0, fmt.Errorf("invalid date %q: no such day in month", s)
	}
	if end {
		switch len(fields) {
		case 1:
			t = t.AddDate(1, 0, 0)
		case 2:
			t = t.AddDate(0, 1, 0)
		default:
			t = t.AddDate(0, 0, 1)
		}
		return t.UnixMilli() - 1, nil
	}
	return t.UnixMilli(), nil
}
