package chrono

import "time"

// TimeAPI is the source of wall clock time for anything that stamps records.
//
// note: fault injection point
type TimeAPI interface {
	Now() time.Time
	Location() *time.Location
}

type StandardTime struct {
	location *time.Location
}

// NewStandardTime creates a StandardTime reporting times in `location`, a nil
// location means UTC.
func NewStandardTime(location *time.Location) StandardTime {
	if location == nil {
		location = time.UTC
	}
	return StandardTime{location: location}
}

func (s StandardTime) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardTime) Location() *time.Location {
	return s.location
}

// FixedTime always reports the same instant.
type FixedTime struct {
	At time.Time
}

func (f FixedTime) Now() time.Time {
	return f.At
}

func (f FixedTime) Location() *time.Location {
	return f.At.Location()
}
