package review

import (
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"
)

// DefaultUpcomingLimit caps CollectUpcoming when no explicit limit is given.
const DefaultUpcomingLimit = 50

// SectionDef is one reviewable section of an item kind.
type SectionDef struct {
	Key   string `json:"key" mapstructure:"key"`
	Label string `json:"label" mapstructure:"label"`
}

// SectionSource resolves the ordered section definitions of an item kind.
type SectionSource interface {
	SectionsForKind(kind string) []SectionDef
}

// Entry is one section selected by a collector.
type Entry struct {
	Item         *Item  `json:"-"`
	ItemID       string `json:"itemId"`
	SectionKey   string `json:"sectionKey"`
	SectionLabel string `json:"sectionLabel"`
	Due          int64  `json:"due"`
}

var markupTag = regexp.MustCompile(`<[^>]*>`)

// HasContent reports whether key is a section of the item's kind and its raw
// value still has text once markup tags and &nbsp; entities are removed.
func HasContent(item *Item, key string, defs SectionSource) bool {
	if item == nil || key == "" || defs == nil {
		return false
	}
	if !slices.ContainsFunc(defs.SectionsForKind(item.Kind), func(d SectionDef) bool { return d.Key == key }) {
		return false
	}
	raw := item.Field(key)
	if raw == nil {
		return false
	}
	// An empty list has no text; other values are judged by their JSON form.
	if v := reflect.ValueOf(raw); v.Kind() == reflect.Slice && v.Len() == 0 {
		return false
	}
	text := markupTag.ReplaceAllString(ContentText(raw), " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	return strings.TrimSpace(text) != ""
}

// RefreshFunc observes every section state a collector re-validates.
type RefreshFunc func(item *Item, key string, ev Evaluation)

type collectConfig struct {
	onRefresh RefreshFunc
}

// CollectOption configures a collector scan.
type CollectOption func(*collectConfig)

// WithRefreshHook registers fn to be called after each section snapshot, so a
// host can persist items whose records changed during the scan.
func WithRefreshHook(fn RefreshFunc) CollectOption {
	return func(c *collectConfig) {
		c.onRefresh = fn
	}
}

// CollectDue returns the reviewed, non-retired sections due at or before now,
// ordered by due time. Sections that were never rated are not due.
func CollectDue(items []*Item, defs SectionSource, now time.Time, opts ...CollectOption) []Entry {
	cutoff := now.UnixMilli()
	return collect(items, defs, now, opts, func(s SectionState) bool {
		return s.Last != 0 && s.Due <= cutoff
	})
}

// CollectUpcoming returns the reviewed sections due after now, ordered by due
// time. A positive limit truncates the result; zero or less returns everything.
func CollectUpcoming(items []*Item, defs SectionSource, now time.Time, limit int, opts ...CollectOption) []Entry {
	cutoff := now.UnixMilli()
	entries := collect(items, defs, now, opts, func(s SectionState) bool {
		return s.Last != 0 && s.Due != NeverDue && s.Due > cutoff
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func collect(items []*Item, defs SectionSource, now time.Time, opts []CollectOption, keep func(SectionState) bool) []Entry {
	var cfg collectConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	results := []Entry{}
	if defs == nil {
		return results
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		for _, def := range defs.SectionsForKind(item.Kind) {
			if !HasContent(item, def.Key, defs) {
				continue
			}
			state, ev, ok := Snapshot(item, def.Key, now)
			if !ok {
				continue
			}
			if cfg.onRefresh != nil {
				cfg.onRefresh(item, def.Key, ev)
			}
			if state.Retired || !keep(state) {
				continue
			}
			results = append(results, Entry{
				Item:         item,
				ItemID:       item.ID,
				SectionKey:   def.Key,
				SectionLabel: def.Label,
				Due:          state.Due,
			})
		}
	}
	slices.SortStableFunc(results, func(a, b Entry) int {
		switch {
		case a.Due < b.Due:
			return -1
		case a.Due > b.Due:
			return 1
		}
		return 0
	})
	return results
}
