package util

import (
	"fmt"
	"time"
)

const isoDate = "2006-01-02"

// ISODateToUnix converts a YYYY-MM-DD date to UTC midnight epoch seconds.
func ISODateToUnix(s string) (int64, error) {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return 0, fmt.Errorf("parse iso date %q: %w", s, err)
	}
	return t.Unix(), nil
}

// UnixToISODate formats epoch seconds back to a YYYY-MM-DD date in UTC.
func UnixToISODate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(isoDate)
}
