package nmea

import (
	"strconv"
	"strings"
)

// fields is a positional accessor over the comma-separated body of a
// sentence. Out-of-range reads return absent values, so extractors never
// need manual bounds checks and short sentences simply leave trailing
// fields unset.
type fields []string

func splitFields(body string) fields {
	return strings.Split(body, ",")
}

// at returns the raw field at index i, or "" when the sentence is too short.
func (f fields) at(i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return f[i]
}

// float parses the field at index i, returning nil when the field is
// missing or not numeric.
func (f fields) float(i int) *float64 {
	s := f.at(i)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// intVal parses the field at index i as an integer, returning ok=false when
// missing or malformed.
func (f fields) intVal(i int) (int, bool) {
	s := f.at(i)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
