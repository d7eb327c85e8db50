package fleet

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultUndersampling is the GPS undersampling factor applied when none is given.
// At 30 the server's record cap covers about one day of one-minute samples.
const DefaultUndersampling = 30

var (
	ErrInvalidTimestamp     = errors.New("invalid timestamp format")
	ErrInvalidUndersampling = errors.New("undersampling factor must not be negative")
)

// isoLayouts are the ISO-8601 forms accepted for start_time/end_time.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TimeRange bounds a stats or GPS query. End is optional.
// Values are passed to the server verbatim once they are known to parse.
type TimeRange struct {
	Start string
	End   string
}

// Since is a range open at the end.
func Since(t time.Time) TimeRange {
	return TimeRange{Start: t.Format(time.RFC3339)}
}

// Between is a closed range.
func Between(from, to time.Time) TimeRange {
	return TimeRange{Start: from.Format(time.RFC3339), End: to.Format(time.RFC3339)}
}

// IsISO8601 reports whether s parses under one of the accepted layouts.
func IsISO8601(s string) bool {
	_, ok := ParseTimestamp(s)
	return ok
}

// ParseTimestamp parses s under the first accepted ISO-8601 layout that fits.
// Values without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (r TimeRange) query() (map[string]string, error) {
	if !IsISO8601(r.Start) {
		return nil, fmt.Errorf("start_time %q: %w", r.Start, ErrInvalidTimestamp)
	}
	q := map[string]string{"start_time": r.Start}
	if r.End != "" {
		if !IsISO8601(r.End) {
			return nil, fmt.Errorf("end_time %q: %w", r.End, ErrInvalidTimestamp)
		}
		q["end_time"] = r.End
	}
	return q, nil
}

func gpsQuery(r TimeRange, undersampling int) (map[string]string, error) {
	if undersampling < 0 {
		return nil, ErrInvalidUndersampling
	}
	q, err := r.query()
	if err != nil {
		return nil, err
	}
	if undersampling == 0 {
		undersampling = DefaultUndersampling
	}
	q["undersampling_factor"] = strconv.Itoa(undersampling)
	return q, nil
}
