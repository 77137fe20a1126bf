package review

import (
	"math"
	"time"
)

const msPerMinute = 60 * 1000

// NextStreak returns the streak after a review rating, given the previous streak.
func NextStreak(r Rating, prev int) int {
	if prev < 0 {
		prev = 0
	}
	switch r {
	case Again:
		return 0
	case Hard:
		return max(1, prev)
	case Easy:
		return prev + 2
	default:
		return prev + 1
	}
}

// Multiplier scales the base interval of a rating. Again never compounds.
func Multiplier(r Rating, streak int) int {
	if r == Again {
		return 1
	}
	return max(1, streak)
}

// Apply is the rating transition. It returns the state that results from
// rating s at now; s itself is not modified. Ratings other than Retire and the
// four review ratings are applied as Good.
func Apply(s SectionState, r Rating, durations ReviewDurations, now time.Time) SectionState {
	next := s.Clone()
	ts := now.UnixMilli()

	if r == Retire {
		next.Streak = 0
		next.LastRating = Retire
		next.Last = ts
		next.Due = NeverDue
		next.Retired = true
		return next
	}
	if !r.IsReview() {
		r = Good
	}

	next.Streak = NextStreak(r, s.Streak)
	minutes := durations.Normalized().Minutes(r)
	interval := minutes * float64(Multiplier(r, next.Streak))

	next.LastRating = r
	next.Last = ts
	next.Retired = false
	next.Due = addMinutes(ts, interval)
	return next
}

func addMinutes(ts int64, minutes float64) int64 {
	due := float64(ts) + math.Round(minutes*msPerMinute)
	if due >= float64(NeverDue) {
		return NeverDue - 1
	}
	return int64(due)
}

// Rate records a rating for one section of item and returns the new state.
// The section is created on first use and its digest and lecture scope are
// refreshed before the rating applies; unlike Snapshot, a changed digest does
// not reset the streak here. The caller persists the item afterwards.
// It reports false, and changes nothing, when item is nil or key is empty.
func Rate(item *Item, key string, r Rating, durations ReviewDurations, now time.Time) (SectionState, bool) {
	if item == nil || key == "" {
		return SectionState{}, false
	}
	state := EnsureSection(item, key)
	state.ContentDigest = SectionDigest(item, key)
	state.LectureScope = LectureScope(item)

	*state = Apply(*state, r, durations, now)
	return state.Clone(), true
}
