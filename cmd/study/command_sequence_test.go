package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/commands"
	"github.com/leanovate/gopter/gen"
	"go.uber.org/zap"

	"github.com/danieldreier/mcp-study/internal/review"
	"github.com/danieldreier/mcp-study/internal/sections"
	"github.com/danieldreier/mcp-study/internal/storage"
)

// The sequence model tracks only the "moa" section of drug items.
const sequenceSection = "moa"

var sequenceRatings = []review.Rating{review.Again, review.Hard, review.Good, review.Easy, review.Retire}

// --- System Under Test Definition ---
type studySUT struct {
	service *StudyService
	now     time.Time
	restore func()
}

// --- State Definition ---

type modelSection struct {
	rated   bool
	streak  int
	retired bool
	due     int64
	changed bool // content edited since the last scan or rating
}

// sequenceState is the model. Commands never mutate it in place.
type sequenceState struct {
	items map[string]modelSection
	next  int
	clock time.Time
}

func (s *sequenceState) clone() *sequenceState {
	out := &sequenceState{items: make(map[string]modelSection, len(s.items)), next: s.next, clock: s.clock}
	for id, sec := range s.items {
		out.items[id] = sec
	}
	return out
}

func (s *sequenceState) ids() []string {
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// modelRate is the expected effect of a rating, written out independently of the scheduler.
func modelRate(sec modelSection, r review.Rating, now time.Time) modelSection {
	sec.rated = true
	sec.changed = false
	if r == review.Retire {
		sec.streak = 0
		sec.retired = true
		sec.due = review.NeverDue
		return sec
	}
	sec.retired = false
	minutes := 0
	switch r {
	case review.Again:
		sec.streak = 0
		minutes = review.DefaultAgainMinutes
	case review.Hard:
		sec.streak = max(1, sec.streak)
		minutes = review.DefaultHardMinutes * sec.streak
	case review.Good:
		sec.streak++
		minutes = review.DefaultGoodMinutes * sec.streak
	case review.Easy:
		sec.streak += 2
		minutes = review.DefaultEasyMinutes * sec.streak
	}
	sec.due = now.Add(time.Duration(minutes) * time.Minute).UnixMilli()
	return sec
}

// --- Commands ---

type createItemCmd struct {
	n       int
	content string
}

func (c *createItemCmd) id() string { return fmt.Sprintf("drug-%d", c.n) }

func (c *createItemCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*studySUT)
	_, err := s.service.UpsertItem(context.Background(), review.Item{
		ID:     c.id(),
		Kind:   sections.KindDrug,
		Name:   c.id(),
		Fields: map[string]any{sequenceSection: c.content},
	})
	return err
}

func (c *createItemCmd) NextState(state commands.State) commands.State {
	next := state.(*sequenceState).clone()
	next.items[c.id()] = modelSection{}
	next.next = max(next.next, c.n+1)
	return next
}

func (c *createItemCmd) PreCondition(state commands.State) bool {
	_, exists := state.(*sequenceState).items[c.id()]
	return !exists
}

func (c *createItemCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if err, ok := result.(error); ok && err != nil {
		return &gopter.PropResult{Status: gopter.PropError, Error: err}
	}
	return gopter.NewPropResult(true, c.String())
}

func (c *createItemCmd) String() string { return fmt.Sprintf("CreateItem(%s)", c.id()) }

type rateCmd struct {
	id     string
	rating review.Rating
}

func (c *rateCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*studySUT)
	state, err := s.service.RateSection(context.Background(), c.id, sequenceSection, c.rating)
	if err != nil {
		return err
	}
	return state
}

func (c *rateCmd) NextState(state commands.State) commands.State {
	next := state.(*sequenceState).clone()
	next.items[c.id] = modelRate(next.items[c.id], c.rating, next.clock)
	return next
}

func (c *rateCmd) PreCondition(state commands.State) bool {
	_, ok := state.(*sequenceState).items[c.id]
	return ok
}

func (c *rateCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	got, ok := result.(review.SectionState)
	if !ok {
		return gopter.NewPropResult(false, fmt.Sprintf("%s: unexpected result %v", c, result))
	}
	want := state.(*sequenceState).items[c.id]
	if got.Streak != want.streak || got.Retired != want.retired || got.Due != want.due {
		return gopter.NewPropResult(false, fmt.Sprintf("%s: got streak=%d retired=%v due=%d, want streak=%d retired=%v due=%d",
			c, got.Streak, got.Retired, got.Due, want.streak, want.retired, want.due))
	}
	return gopter.NewPropResult(true, c.String())
}

func (c *rateCmd) String() string { return fmt.Sprintf("Rate(%s, %s)", c.id, c.rating) }

type editContentCmd struct {
	id      string
	content string
}

func (c *editContentCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*studySUT)
	_, err := s.service.UpsertItem(context.Background(), review.Item{
		ID:     c.id,
		Kind:   sections.KindDrug,
		Name:   c.id,
		Fields: map[string]any{sequenceSection: c.content},
	})
	return err
}

func (c *editContentCmd) NextState(state commands.State) commands.State {
	next := state.(*sequenceState).clone()
	sec := next.items[c.id]
	sec.changed = true
	next.items[c.id] = sec
	return next
}

func (c *editContentCmd) PreCondition(state commands.State) bool {
	_, ok := state.(*sequenceState).items[c.id]
	return ok
}

func (c *editContentCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	if err, ok := result.(error); ok && err != nil {
		return &gopter.PropResult{Status: gopter.PropError, Error: err}
	}
	return gopter.NewPropResult(true, c.String())
}

func (c *editContentCmd) String() string { return fmt.Sprintf("EditContent(%s)", c.id) }

type deleteItemCmd struct {
	id string
}

func (c *deleteItemCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*studySUT)
	if err := s.service.DeleteItem(context.Background(), c.id); err != nil {
		return err
	}
	_, err := s.service.GetItem(context.Background(), c.id)
	return err
}

func (c *deleteItemCmd) NextState(state commands.State) commands.State {
	next := state.(*sequenceState).clone()
	delete(next.items, c.id)
	return next
}

func (c *deleteItemCmd) PreCondition(state commands.State) bool {
	_, ok := state.(*sequenceState).items[c.id]
	return ok
}

func (c *deleteItemCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	err, _ := result.(error)
	return gopter.NewPropResult(errors.Is(err, storage.ErrItemNotFound), c.String())
}

func (c *deleteItemCmd) String() string { return fmt.Sprintf("DeleteItem(%s)", c.id) }

type advanceClockCmd struct {
	minutes int
}

func (c *advanceClockCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*studySUT)
	s.now = s.now.Add(time.Duration(c.minutes) * time.Minute)
	return nil
}

func (c *advanceClockCmd) NextState(state commands.State) commands.State {
	next := state.(*sequenceState).clone()
	next.clock = next.clock.Add(time.Duration(c.minutes) * time.Minute)
	return next
}

func (c *advanceClockCmd) PreCondition(state commands.State) bool { return true }

func (c *advanceClockCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	return gopter.NewPropResult(true, c.String())
}

func (c *advanceClockCmd) String() string { return fmt.Sprintf("AdvanceClock(%dm)", c.minutes) }

type dueCmd struct{}

func (c *dueCmd) Run(sut commands.SystemUnderTest) commands.Result {
	s := sut.(*studySUT)
	entries, err := s.service.DueSections(context.Background(), []string{sections.KindDrug})
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ItemID)
	}
	sort.Strings(ids)
	return ids
}

// NextState applies the resets a scan performs on edited sections.
func (c *dueCmd) NextState(state commands.State) commands.State {
	next := state.(*sequenceState).clone()
	for id, sec := range next.items {
		if sec.rated && sec.changed {
			sec.streak = 0
			sec.retired = false
			sec.due = next.clock.UnixMilli()
		}
		sec.changed = false
		next.items[id] = sec
	}
	return next
}

func (c *dueCmd) PreCondition(state commands.State) bool { return true }

func (c *dueCmd) PostCondition(state commands.State, result commands.Result) *gopter.PropResult {
	got, ok := result.([]string)
	if !ok {
		return gopter.NewPropResult(false, fmt.Sprintf("DueSections: unexpected result %v", result))
	}
	model := state.(*sequenceState)
	want := []string{}
	for _, id := range model.ids() {
		sec := model.items[id]
		if sec.rated && !sec.retired && sec.due <= model.clock.UnixMilli() {
			want = append(want, id)
		}
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		return gopter.NewPropResult(false, fmt.Sprintf("DueSections: got %v, want %v", got, want))
	}
	return gopter.NewPropResult(true, c.String())
}

func (c *dueCmd) String() string { return "DueSections" }

// editCounter keeps generated content unique so every edit changes the digest.
var editCounter atomic.Int64

// TestCommandSequences checks random sequences of item edits, ratings and
// scans against the model.
func TestCommandSequences(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.MaxSize = 30

	protoCmds := &commands.ProtoCommands{
		InitialStateGen: gen.Const(&sequenceState{items: map[string]modelSection{}, clock: baseTime}),

		NewSystemUnderTestFunc: func(initialState commands.State) commands.SystemUnderTest {
			filePath := filepath.Join(t.TempDir(), "study-sequence.json")
			fileStorage := storage.NewFileStorage(filePath, zap.NewNop())
			if err := fileStorage.Load(); err != nil {
				t.Fatalf("Failed to initialize storage: %v", err)
			}
			sut := &studySUT{
				service: NewStudyService(fileStorage, sections.Default(), zap.NewNop()),
				now:     initialState.(*sequenceState).clock,
			}
			original := timeNow
			timeNow = func() time.Time { return sut.now }
			sut.restore = func() { timeNow = original }
			return sut
		},

		DestroySystemUnderTestFunc: func(sut commands.SystemUnderTest) {
			s := sut.(*studySUT)
			s.restore()
			_ = s.service.Storage.Close()
		},

		GenCommandFunc: func(state commands.State) gopter.Gen {
			model := state.(*sequenceState)
			weightedGens := []gen.WeightedGen{
				{Weight: 3, Gen: gen.Const(model.next).Map(func(n int) commands.Command {
					return &createItemCmd{n: n, content: fmt.Sprintf("content-%d", n)}
				})},
				{Weight: 3, Gen: gen.IntRange(0, 3000).Map(func(m int) commands.Command {
					return &advanceClockCmd{minutes: m}
				})},
				{Weight: 3, Gen: gen.Const(&dueCmd{}).Map(func(c *dueCmd) commands.Command { return c })},
			}

			ids := model.ids()
			if len(ids) > 0 {
				idGen := gen.IntRange(0, len(ids)-1)
				weightedGens = append(weightedGens,
					gen.WeightedGen{Weight: 8, Gen: gopter.CombineGens(idGen, gen.IntRange(0, len(sequenceRatings)-1)).
						Map(func(v []interface{}) commands.Command {
							return &rateCmd{id: ids[v[0].(int)], rating: sequenceRatings[v[1].(int)]}
						})},
					gen.WeightedGen{Weight: 2, Gen: idGen.Map(func(i int) commands.Command {
						return &editContentCmd{id: ids[i], content: fmt.Sprintf("edit-%d", editCounter.Add(1))}
					})},
					gen.WeightedGen{Weight: 1, Gen: idGen.Map(func(i int) commands.Command {
						return &deleteItemCmd{id: ids[i]}
					})},
				)
			}
			return gen.Weighted(weightedGens)
		},
	}

	properties := gopter.NewProperties(parameters)
	properties.Property("command sequences match the review model", commands.Prop(protoCmds))
	properties.TestingRun(t)
}
