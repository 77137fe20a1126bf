// Package main provides the study review MCP server and command line.
package main

import (
	"time"

	"github.com/danieldreier/mcp-study/internal/review"
)

// ReviewStats summarizes review state across a set of kinds.
type ReviewStats struct {
	TotalItems       int `json:"total_items"`
	TotalSections    int `json:"total_sections"`
	DueSections      int `json:"due_sections"`
	UpcomingSections int `json:"upcoming_sections"`
	UnseenSections   int `json:"unseen_sections"`
	RetiredSections  int `json:"retired_sections"`
}

// SectionEntry is one row of a due or upcoming listing
type SectionEntry struct {
	ItemID       string     `json:"item_id"`
	ItemName     string     `json:"item_name"`
	Kind         string     `json:"kind"`
	SectionKey   string     `json:"section_key"`
	SectionLabel string     `json:"section_label"`
	Due          int64      `json:"due"`
	DueAt        *time.Time `json:"due_at,omitempty"`
}

// dueTime converts a due timestamp for display. Timestamps past year 9999
// have no RFC 3339 form and are left out.
func dueTime(ms int64) *time.Time {
	t := time.UnixMilli(ms).UTC()
	if ms <= 0 || t.Year() > 9999 {
		return nil
	}
	return &t
}

func newSectionEntries(entries []review.Entry) []SectionEntry {
	out := make([]SectionEntry, 0, len(entries))
	for _, e := range entries {
		row := SectionEntry{
			ItemID:       e.ItemID,
			SectionKey:   e.SectionKey,
			SectionLabel: e.SectionLabel,
			Due:          e.Due,
			DueAt:        dueTime(e.Due),
		}
		if e.Item != nil {
			row.ItemName = e.Item.Name
			row.Kind = e.Item.Kind
		}
		out = append(out, row)
	}
	return out
}

// SectionsResponse represents the response structure for get_due_sections and get_upcoming_sections
type SectionsResponse struct {
	Sections []SectionEntry `json:"sections"`
	Count    int            `json:"count"`
	Stats    *ReviewStats   `json:"stats,omitempty"`
}

// RateSectionResponse represents the response structure for rate_section
type RateSectionResponse struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	ItemID     string              `json:"item_id"`
	SectionKey string              `json:"section_key"`
	State      review.SectionState `json:"state"`
	DueAt      *time.Time          `json:"due_at,omitempty"`
}

// SectionStateResponse represents the response structure for get_section_state
type SectionStateResponse struct {
	ItemID     string               `json:"item_id"`
	SectionKey string               `json:"section_key"`
	Found      bool                 `json:"found"`
	State      *review.SectionState `json:"state,omitempty"`
}

// ItemResponse represents the response structure for upsert_item and get_item
type ItemResponse struct {
	Item review.Item `json:"item"`
}

// DeleteItemResponse represents the response structure for delete_item
type DeleteItemResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListItemsResponse represents the response structure for list_items
type ListItemsResponse struct {
	Items []review.Item `json:"items"`
	Count int           `json:"count"`
}

// SectionDefsResponse represents the response structure for list_sections
type SectionDefsResponse struct {
	Kind     string              `json:"kind"`
	Sections []review.SectionDef `json:"sections"`
}

// ReviewStepsResponse represents the response structure for get_review_steps and update_review_steps
type ReviewStepsResponse struct {
	Steps review.ReviewDurations `json:"steps"`
}
