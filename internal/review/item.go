package review

import (
	"encoding/json"

	"github.com/spf13/cast"
)

// LectureRef assigns an item to one lecture of a curriculum block.
type LectureRef struct {
	BlockID string `json:"blockId"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Week    int    `json:"week,omitempty"`
}

// UnmarshalJSON tolerates numeric identifiers and weeks stored as strings.
func (l *LectureRef) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = LectureRef{
		BlockID: cast.ToString(raw["blockId"]),
		ID:      cast.ToString(raw["id"]),
		Name:    cast.ToString(raw["name"]),
		Week:    cast.ToInt(raw["week"]),
	}
	return nil
}

// Item is a piece of study content. Fields holds the raw value of each
// section, keyed by section key; SR is the item's review schedule.
type Item struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Fields   map[string]any `json:"fields"`
	Lectures []LectureRef   `json:"lectures"`
	SR       *ItemRecord    `json:"sr,omitempty"`
}

// Field returns the raw value stored for a section key.
func (it *Item) Field(key string) any {
	if it == nil || it.Fields == nil {
		return nil
	}
	return it.Fields[key]
}
