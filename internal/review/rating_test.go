package review

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRating(t *testing.T) {
	tests := map[string]Rating{
		"again":  Again,
		"hard":   Hard,
		"good":   Good,
		"easy":   Easy,
		"retire": Retire,
		"":       Good,
		"Again":  Good,
		"great":  Good,
		"5":      Good,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseRating(raw), "ParseRating(%q)", raw)
	}
}

func TestRatingString(t *testing.T) {
	assert.Equal(t, "again", Again.String())
	assert.Equal(t, "retire", Retire.String())
	assert.Equal(t, "", NoRating.String())
	assert.Equal(t, "Rating(42)", Rating(42).String())
	assert.True(t, Easy.IsReview())
	assert.False(t, Retire.IsReview())
	assert.False(t, NoRating.IsReview())
}

func TestRatingJSON(t *testing.T) {
	type wrapper struct {
		R Rating `json:"r"`
	}

	out, err := json.Marshal(wrapper{R: Hard})
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":"hard"}`, string(out))

	out, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":null}`, string(out))

	for input, want := range map[string]Rating{
		`{"r":"retire"}`: Retire,
		`{"r":null}`:     NoRating,
		`{"r":"meh"}`:    NoRating,
		`{"r":3}`:        NoRating,
	} {
		var w wrapper
		require.NoError(t, json.Unmarshal([]byte(input), &w), input)
		assert.Equal(t, want, w.R, input)
	}
}
