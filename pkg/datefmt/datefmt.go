// Package datefmt renders and parses the timestamps stored in index documents
// and reported by the status endpoint.
package datefmt

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layout is the millisecond-precision format with an explicit UTC offset,
// e.g. 2015-04-20T10:11:12.000+0000.
const Layout = "2006-01-02T15:04:05.000-0700"

// FormatMillis renders t in UTC using Layout.
func FormatMillis(t time.Time) string {
	return t.UTC().Format(Layout)
}

// FormatMillisPtr renders t, or returns nil for the zero time.
func FormatMillisPtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := FormatMillis(t)
	return &s
}

// ParseIndexTimestamp parses an entry_datetime value read back from an index.
// Older documents were written with a two digit year, no milliseconds and a
// two digit offset ("15-05-26T18:09:51+00"); those are normalised first.
// Anything else falls through to dateparse.
func ParseIndexTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if fixed, ok := NormaliseLegacy(s); ok {
		if t, err := time.Parse(Layout, fixed); err == nil {
			return t.UTC(), nil
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NormaliseLegacy rewrites s into Layout when it has the
// "[YY]YY-MM-DDTHH:MM:SS[.fff]+ZZ[ZZ]" shape. The second return value is
// false when s does not have that shape.
func NormaliseLegacy(s string) (string, bool) {
	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return "", false
	}
	hms, tzPart, ok := strings.Cut(timePart, "+")
	if !ok || tzPart == "" || len(tzPart) > 4 || !isDigits(tzPart) {
		return "", false
	}

	if len(datePart) == len("06-01-02") {
		datePart = "20" + datePart
	}
	if len(datePart) != len("2006-01-02") {
		return "", false
	}

	secondsPart, msPart, _ := strings.Cut(hms, ".")
	if len(secondsPart) != len("15:04:05") {
		return "", false
	}
	if len(msPart) > 3 {
		msPart = msPart[:3]
	}
	msPart += strings.Repeat("0", 3-len(msPart))

	tzPart += strings.Repeat("0", 4-len(tzPart))

	return fmt.Sprintf("%sT%s.%s+%s", datePart, secondsPart, msPart, tzPart), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
