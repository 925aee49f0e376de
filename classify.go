package strata

import (
	"strconv"
	"strings"
	"time"
)

// Class is the duck-type classification of a scalar value, determined by
// ordered parse attempts: numeric first, then datetime. A value that parses
// both ways is ClassNumericAndDate and populates all three projections; the
// numeric tag wins for the string row. The canonical string form is always
// stored unchanged, including trailing whitespace.
type Class int

const (
	ClassOpaque Class = iota
	ClassNumeric
	ClassDate
	ClassNumericAndDate
)

// dateLayouts are tried in order by the date parse attempt. Parsing trims
// surrounding whitespace first; the stored string form is never trimmed.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02 Jan 2006 - 15:04",
	"02 Jan 2006",
	"20060102",
}

// Classification carries the class and, where applicable, the parsed
// projections of a value.
type Classification struct {
	Class Class
	Num   float64
	Time  time.Time
}

// Classify determines the duck-type of a scalar value. The precedence is an
// explicit policy: a value that parses as both a number and a date (for
// example "20060102") is tagged numeric, and both extra projections are
// written.
func Classify(value string) Classification {
	var c Classification

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return c
	}

	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		c.Class = ClassNumeric
		c.Num = n
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			if c.Class == ClassNumeric {
				c.Class = ClassNumericAndDate
			} else {
				c.Class = ClassDate
			}
			c.Time = t
			break
		}
	}

	return c
}

// duckTag maps a class to the duck-type stored on the string projection row.
func (c Class) duckTag() int16 {
	switch c {
	case ClassNumeric, ClassNumericAndDate:
		return duckNumeric
	case ClassDate:
		return duckDate
	}
	return duckString
}

// hasNum reports whether the numeric projection is populated.
func (c Class) hasNum() bool {
	return c == ClassNumeric || c == ClassNumericAndDate
}

// hasTime reports whether the datetime projection is populated.
func (c Class) hasTime() bool {
	return c == ClassDate || c == ClassNumericAndDate
}
