package review

import (
	"encoding/json"
	"fmt"
)

// Rating is the outcome a user assigns to a section review.
type Rating uint8

const (
	// NoRating marks a section that has never been rated or was invalidated.
	NoRating Rating = iota
	Again
	Hard
	Good
	Easy
	// Retire takes a section out of the schedule permanently.
	Retire
)

var ratingNames = [...]string{
	NoRating: "",
	Again:    "again",
	Hard:     "hard",
	Good:     "good",
	Easy:     "easy",
	Retire:   "retire",
}

// ReviewRatings lists the ratings that schedule a next review, in scale order.
var ReviewRatings = []Rating{Again, Hard, Good, Easy}

// String returns the persisted name of the rating.
func (r Rating) String() string {
	if int(r) < len(ratingNames) {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// IsReview reports whether r is one of again, hard, good or easy.
func (r Rating) IsReview() bool {
	return r >= Again && r <= Easy
}

// ParseRating converts an external rating name. Retire and the four review
// ratings map to themselves; everything else is treated as Good.
func ParseRating(raw string) Rating {
	if r, ok := lookupRating(raw); ok && r != NoRating {
		return r
	}
	return Good
}

func lookupRating(name string) (Rating, bool) {
	for i, n := range ratingNames {
		if i != int(NoRating) && n == name {
			return Rating(i), true
		}
	}
	return NoRating, false
}

// MarshalJSON encodes NoRating as null and every other rating by name.
func (r Rating) MarshalJSON() ([]byte, error) {
	if r == NoRating || int(r) >= len(ratingNames) {
		return []byte("null"), nil
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a rating name. Null, non-strings and unknown names
// decode to NoRating rather than failing.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		*r = NoRating
		return nil
	}
	parsed, _ := lookupRating(name)
	*r = parsed
	return nil
}
