package review

import (
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// RecordVersion is the only schedule shape this package reads.
const RecordVersion = 2

// NeverDue is the due timestamp of retired sections (2^53 - 1, the largest
// integer every JSON consumer can represent exactly).
const NeverDue int64 = 1<<53 - 1

// MaxStreak caps streaks read from stored data.
const MaxStreak = math.MaxInt32

// SectionState is the review state of one section of one item. Timestamps are
// milliseconds since the Unix epoch; 0 means "never".
type SectionState struct {
	Streak        int      `json:"streak"`
	LastRating    Rating   `json:"lastRating"`
	Last          int64    `json:"last"`
	Due           int64    `json:"due"`
	Retired       bool     `json:"retired"`
	ContentDigest string   `json:"contentDigest,omitempty"`
	LectureScope  []string `json:"lectureScope"`
}

// DefaultSectionState returns the state of a section that was never reviewed.
func DefaultSectionState() SectionState {
	return SectionState{LectureScope: []string{}}
}

// Clone returns a copy that shares no memory with s.
func (s SectionState) Clone() SectionState {
	s.LectureScope = slices.Clone(s.LectureScope)
	if s.LectureScope == nil {
		s.LectureScope = []string{}
	}
	return s
}

// UnmarshalJSON accepts any JSON value and normalizes it; malformed fields
// fall back to their defaults instead of failing the decode.
func (s *SectionState) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NormalizeSection(raw)
	return nil
}

// NormalizeSection builds a valid SectionState from a decoded JSON value.
func NormalizeSection(raw any) SectionState {
	state := DefaultSectionState()
	m, ok := raw.(map[string]any)
	if !ok {
		return state
	}
	if n, ok := jsonNumber(m["streak"]); ok && n > 0 {
		state.Streak = int(math.Round(min(n, MaxStreak)))
	}
	if name, ok := m["lastRating"].(string); ok {
		if r, known := lookupRating(name); known {
			state.LastRating = r
		}
	}
	state.Last = sanitizeTimestamp(m["last"])
	state.Due = sanitizeTimestamp(m["due"])
	state.Retired = truthy(m["retired"])
	if digest, ok := m["contentDigest"].(string); ok {
		state.ContentDigest = digest
	}
	if list, ok := m["lectureScope"].([]any); ok {
		tokens := make([]string, 0, len(list))
		for _, entry := range list {
			if token, ok := entry.(string); ok {
				tokens = append(tokens, token)
			}
		}
		state.LectureScope = NormalizeScope(tokens)
	}
	if state.Retired {
		state.Due = NeverDue
	}
	return state
}

// ItemRecord is the per-item schedule: one SectionState per section key.
type ItemRecord struct {
	Version  int                      `json:"version"`
	Sections map[string]*SectionState `json:"sections"`
}

// NewItemRecord returns an empty record of the current version.
func NewItemRecord() *ItemRecord {
	return &ItemRecord{Version: RecordVersion, Sections: map[string]*SectionState{}}
}

// UnmarshalJSON migrates whatever is stored to the current record shape.
func (r *ItemRecord) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = *MigrateRecord(raw)
	return nil
}

// MigrateRecord converts a decoded schedule of any known version into the
// current one.
func MigrateRecord(raw any) *ItemRecord {
	m, ok := raw.(map[string]any)
	if !ok {
		return NewItemRecord()
	}
	version, _ := jsonNumber(m["version"])
	switch version {
	case RecordVersion:
		return migrateV2(m["sections"])
	default:
		// Version 1 stored a single box/ease pair per item. Its entries do not
		// map onto per-section state, so they are dropped, as are unknown versions.
		return NewItemRecord()
	}
}

func migrateV2(raw any) *ItemRecord {
	record := NewItemRecord()
	sections, ok := raw.(map[string]any)
	if !ok {
		return record
	}
	for key, value := range sections {
		if key == "" {
			continue
		}
		state := NormalizeSection(value)
		record.Sections[key] = &state
	}
	return record
}

// EnsureRecord returns the item's record, replacing it with an empty one if it
// is missing or of another version.
func EnsureRecord(item *Item) *ItemRecord {
	if item == nil {
		return NewItemRecord()
	}
	if item.SR == nil || item.SR.Version != RecordVersion {
		item.SR = NewItemRecord()
	}
	if item.SR.Sections == nil {
		item.SR.Sections = map[string]*SectionState{}
	}
	return item.SR
}

// EnsureSection returns the stored state for key, creating a default state on
// first access.
func EnsureSection(item *Item, key string) *SectionState {
	record := EnsureRecord(item)
	state, ok := record.Sections[key]
	if !ok || state == nil {
		fresh := DefaultSectionState()
		state = &fresh
		record.Sections[key] = state
	}
	if state.LectureScope == nil {
		state.LectureScope = []string{}
	}
	return state
}

// NormalizeScope trims, deduplicates and sorts lecture scope tokens.
func NormalizeScope(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			out = append(out, token)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// jsonNumber accepts only values that are numbers in JSON.
func jsonNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func sanitizeTimestamp(v any) int64 {
	if v == nil {
		return 0
	}
	n, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0
	}
	if n > float64(NeverDue) {
		return NeverDue
	}
	return int64(n)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}
