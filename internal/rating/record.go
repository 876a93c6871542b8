package rating

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Discipline is one of the three rating lists published for a player.
type Discipline int

const (
	Standard Discipline = iota
	Rapid
	Blitz
)

// Disciplines lists every discipline in canonical order.
var Disciplines = []Discipline{Standard, Rapid, Blitz}

func (d Discipline) String() string {
	switch d {
	case Standard:
		return "Standard"
	case Rapid:
		return "Rapid"
	case Blitz:
		return "Blitz"
	}
	return fmt.Sprintf("Discipline(%d)", int(d))
}

// MonthlyRecord is one player's ratings for one calendar month. Month is
// always the last day of that month at midnight UTC.
type MonthlyRecord struct {
	Month    time.Time
	Standard Rating
	Rapid    Rating
	Blitz    Rating
}

// Get returns the rating for a discipline.
func (r MonthlyRecord) Get(d Discipline) Rating {
	switch d {
	case Rapid:
		return r.Rapid
	case Blitz:
		return r.Blitz
	}
	return r.Standard
}

// DateFormat is the ISO-8601 calendar date format used wherever a month end
// is written out.
const DateFormat = "2006-01-02"

// MonthEnd returns the last calendar day of the given month.
func MonthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

var ErrMonthLabel = errors.New("invalid month label")

var monthAbbreviations = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

// ParseMonthLabel parses a label of the form "2025-Nov" into the month end
// date it designates. Month abbreviations are case-sensitive.
func ParseMonthLabel(label string) (time.Time, error) {
	year, abbrev, ok := strings.Cut(strings.TrimSpace(label), "-")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMonthLabel, label)
	}
	month, ok := monthAbbreviations[strings.TrimSpace(abbrev)]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month in %q", ErrMonthLabel, label)
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y <= 0 {
		return time.Time{}, fmt.Errorf("%w: bad year in %q", ErrMonthLabel, label)
	}
	return MonthEnd(y, month), nil
}

// ParseDate parses an ISO-8601 calendar date as written by FormatDate.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, strings.TrimSpace(s), time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

var identityRegex = regexp.MustCompile(`^\d{4,10}$`)

// ValidID reports whether `id` is syntactically a player identifier: 4 to 10
// ascii digits. It says nothing about whether the player exists.
func ValidID(id string) bool {
	return identityRegex.MatchString(id)
}
