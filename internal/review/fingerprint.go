package review

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"
)

// UnassignedScope is the scope token of an item with no lecture assignments.
const UnassignedScope = "__unassigned|__none"

// ContentText renders a raw section value as text. Strings are used as is and
// other values are encoded as JSON. Nil renders as "".
func ContentText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return ""
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// Digest fingerprints a raw section value with a 31-multiplier rolling hash
// over UTF-16 code units, rendered as lowercase hex. Empty content has no
// digest and yields "".
func Digest(value any) string {
	text := ContentText(value)
	if text == "" {
		return ""
	}
	var hash uint32
	for _, unit := range utf16.Encode([]rune(text)) {
		hash = hash*31 + uint32(unit)
	}
	return strconv.FormatUint(uint64(hash), 16)
}

// SectionDigest fingerprints the current content of one section of item.
func SectionDigest(item *Item, key string) string {
	if item == nil || key == "" {
		return ""
	}
	return Digest(item.Field(key))
}

// LectureScope returns the sorted, deduplicated "<blockId>|<lectureId>" tokens
// of the item's lecture assignments.
func LectureScope(item *Item) []string {
	if item == nil || len(item.Lectures) == 0 {
		return []string{UnassignedScope}
	}
	tokens := make([]string, 0, len(item.Lectures))
	for _, lecture := range item.Lectures {
		tokens = append(tokens, lecture.BlockID+"|"+lecture.ID)
	}
	return NormalizeScope(tokens)
}

// Evaluation describes what happened to a section state when it was checked
// against the item's current content and scope.
type Evaluation struct {
	// ContentChanged is set when the stored and current digests both exist and differ.
	ContentChanged bool
	// ScopeRemoved is set when a previously scoped lecture is no longer assigned.
	ScopeRemoved bool
	// Refreshed is set when the returned state differs from the input in any field.
	Refreshed bool
}

// Invalidated reports whether the schedule was reset.
func (e Evaluation) Invalidated() bool {
	return e.ContentChanged || e.ScopeRemoved
}

// Evaluate checks a stored state against the current digest and scope. If the
// content changed or a lecture was removed, the returned state is reset and
// due at now. The returned state always carries the current digest and scope.
// The input is not modified.
func Evaluate(state SectionState, digest string, scope []string, now time.Time) (SectionState, Evaluation) {
	next := state.Clone()
	stored := NormalizeScope(state.LectureScope)

	var ev Evaluation
	ev.ContentChanged = state.ContentDigest != "" && digest != "" && state.ContentDigest != digest
	for _, token := range stored {
		if !slices.Contains(scope, token) {
			ev.ScopeRemoved = true
			break
		}
	}

	if ev.Invalidated() {
		ts := now.UnixMilli()
		next.Streak = 0
		next.LastRating = NoRating
		next.Last = ts
		next.Due = ts
		next.Retired = false
	}
	next.ContentDigest = digest
	next.LectureScope = slices.Clone(scope)
	if next.LectureScope == nil {
		next.LectureScope = []string{}
	}

	ev.Refreshed = ev.Invalidated() ||
		state.ContentDigest != next.ContentDigest ||
		!slices.Equal(state.LectureScope, next.LectureScope)
	return next, ev
}

// Snapshot returns the section's state after re-validating it against the
// item's current content and lecture scope. The refreshed state is written
// back to the item. It reports false when the item has no stored state for key.
func Snapshot(item *Item, key string, now time.Time) (SectionState, Evaluation, bool) {
	if item == nil || item.SR == nil || item.SR.Version != RecordVersion {
		return SectionState{}, Evaluation{}, false
	}
	stored, ok := item.SR.Sections[key]
	if !ok || stored == nil {
		return SectionState{}, Evaluation{}, false
	}
	next, ev := Evaluate(*stored, SectionDigest(item, key), LectureScope(item), now)
	*stored = next
	return next.Clone(), ev, true
}
