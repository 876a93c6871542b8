package rating

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	MinRating = 0
	MaxRating = 4000
)

// Rating is a player's rating in one discipline for one month, it is either
// a number in [MinRating, MaxRating] or unrated. The zero value is unrated.
type Rating struct {
	points int
	rated  bool
}

// Unrated is the explicit absence of a numeric rating.
var Unrated = Rating{}

// Rated returns a rated value, numbers outside the accepted range are unrated.
func Rated(points int) Rating {
	if points < MinRating || points > MaxRating {
		return Unrated
	}
	return Rating{points: points, rated: true}
}

// Value returns the rating and whether the player was rated at all.
func (r Rating) Value() (int, bool) {
	return r.points, r.rated
}

func (r Rating) IsRated() bool {
	return r.rated
}

// String renders the rating for messages, unrated becomes "unrated".
func (r Rating) String() string {
	if !r.rated {
		return "unrated"
	}
	return strconv.Itoa(r.points)
}

// Cell renders the rating for a tabular cell, unrated becomes empty.
func (r Rating) Cell() string {
	if !r.rated {
		return ""
	}
	return strconv.Itoa(r.points)
}

// ParseRating parses a single rating cell. Empty, "not rated" and "unrated"
// (in any case) are unrated, as is anything that is not an integer within
// range.
func ParseRating(token string) Rating {
	token = strings.TrimSpace(token)
	switch strings.ToLower(token) {
	case "", "not rated", "unrated":
		return Unrated
	}
	points, err := strconv.Atoi(token)
	if err != nil {
		return Unrated
	}
	return Rated(points)
}

var embeddedRating = regexp.MustCompile(`\b(\d{3,4})\b`)

// ParseRatingText finds a rating inside free text such as "2830 Std", it is
// used where the rating is not alone in its element.
func ParseRatingText(text string) Rating {
	direct := ParseRating(text)
	if direct.IsRated() {
		return direct
	}
	match := embeddedRating.FindStringSubmatch(text)
	if match == nil {
		return Unrated
	}
	return ParseRating(match[1])
}
