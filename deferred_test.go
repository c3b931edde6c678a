// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activitymatch

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBooking struct {
	id       string
	attendee string
	occasion string
	priority int
	created  time.Time
}

func (b *testBooking) ID() string           { return b.id }
func (b *testBooking) AttendeeID() string   { return b.attendee }
func (b *testBooking) OccasionID() string   { return b.occasion }
func (b *testBooking) Priority() int        { return b.priority }
func (b *testBooking) CreatedAt() time.Time { return b.created }

type testOccasion struct {
	id       string
	min, max int
	bookings []string
	spans    []Timespan
}

func (o *testOccasion) ID() string            { return o.id }
func (o *testOccasion) SpotsMin() int         { return o.min }
func (o *testOccasion) SpotsMax() int         { return o.max }
func (o *testOccasion) BookingIDs() []string  { return o.bookings }
func (o *testOccasion) Timespans() []Timespan { return o.spans }

func makeBooking(id, attendee, occasion string, priority int) *testBooking {
	return &testBooking{id: id, attendee: attendee, occasion: occasion, priority: priority}
}

func makeOccasion(id string, min, max int) *testOccasion {
	return &testOccasion{id: id, min: min, max: max}
}

// link fills the occasions' booking lists and converts to the interfaces.
func link(occasions []*testOccasion, bookings []*testBooking) ([]MatchableBooking, []MatchableOccasion) {
	index := make(map[string]*testOccasion)
	os := make([]MatchableOccasion, len(occasions))
	for i, o := range occasions {
		o.bookings = nil
		index[o.id] = o
		os[i] = o
	}
	bs := make([]MatchableBooking, len(bookings))
	for i, b := range bookings {
		if o, ok := index[b.occasion]; ok {
			o.bookings = append(o.bookings, b.id)
		}
		bs[i] = b
	}
	return bs, os
}

// mockRanking prefers higher scores, then lower priority, then lower id.
type mockRanking struct {
	scores map[string]float64
	fail   string
}

func (r *mockRanking) Less(o MatchableOccasion, a, b MatchableBooking) (bool, error) {
	if a.ID() == r.fail || b.ID() == r.fail {
		return false, errMockRanking
	}
	sa, sb := r.scores[a.ID()], r.scores[b.ID()]
	if sa != sb {
		return sa > sb, nil
	}
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority(), nil
	}
	return a.ID() < b.ID(), nil
}

var errMockRanking = errors.New("mock ranking failure")

func equalRanking() *mockRanking {
	return &mockRanking{scores: map[string]float64{}}
}

func TestDeferredAcceptance_Scenarios(t *testing.T) {
	t.Run("A_PriorityBreaksTies", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 2)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a2", "o1", 1),
				makeBooking("b3", "a3", "o1", 2),
			})

		decisions, err := DeferredAcceptance(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Accepted, "b2": Accepted, "b3": Denied}, decisions)
	})

	t.Run("B_BelowMinimum", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 3, 5)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a2", "o1", 1),
			})

		res, err := DeferredAcceptanceMatcher(Config{}).Match(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Denied, "b2": Denied}, res.Decisions)
		assert.Equal(t, []string{"o1"}, res.BelowMinimum)
	})

	t.Run("C_EnoughCapacity", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 2), makeOccasion("o2", 1, 3)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a1", "o2", 2),
				makeBooking("b3", "a2", "o1", 2),
				makeBooking("b4", "a2", "o2", 1),
			})

		res, err := DeferredAcceptanceMatcher(Config{}).Match(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Len(t, res.Decisions, 4)
		assert.Equal(t, 4, res.Decisions.Count(Accepted))
		assert.Empty(t, res.BelowMinimum)
	})
}

func TestDeferredAcceptance_Ranking(t *testing.T) {
	t.Run("ScoreBeatsPriority", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 1)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a2", "o1", 5),
			})
		ranking := &mockRanking{scores: map[string]float64{"b2": 1}}

		decisions, err := DeferredAcceptance(bookings, occasions, ranking)
		require.NoError(t, err)
		assert.Equal(t, Accepted, decisions["b2"])
		assert.Equal(t, Denied, decisions["b1"])
	})

	t.Run("ZeroSeats", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 0)},
			[]*testBooking{makeBooking("b1", "a1", "o1", 1)})

		decisions, err := DeferredAcceptance(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Denied}, decisions)
	})

	t.Run("RankingErrorAbortsRun", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 1)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a2", "o1", 1),
			})
		ranking := &mockRanking{scores: map[string]float64{}, fail: "b2"}

		decisions, err := DeferredAcceptance(bookings, occasions, ranking)
		require.ErrorIs(t, err, errMockRanking)
		assert.Nil(t, decisions)
	})
}

func TestDeferredAcceptance_Limits(t *testing.T) {
	t.Run("DefaultLimit", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 5), makeOccasion("o2", 0, 5)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 2),
				makeBooking("b2", "a1", "o2", 1),
			})

		res, err := DeferredAcceptanceMatcher(Config{DefaultLimit: 1}).Match(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Denied, "b2": Accepted}, res.Decisions)
	})

	t.Run("AttendeeOverride", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 5), makeOccasion("o2", 0, 5)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a1", "o2", 2),
				makeBooking("b3", "a2", "o1", 1),
			})
		cfg := Config{DefaultLimit: 1, AttendeeLimits: map[string]int{"a1": 2, "a2": 0}}

		res, err := DeferredAcceptanceMatcher(cfg).Match(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Accepted, "b2": Accepted, "b3": Denied}, res.Decisions)
	})

	t.Run("DisplacedAttendeeResumes", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 1), makeOccasion("o2", 0, 1)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a1", "o2", 2),
				makeBooking("b3", "a2", "o1", 1),
			})
		ranking := &mockRanking{scores: map[string]float64{"b3": 1}}

		res, err := DeferredAcceptanceMatcher(Config{DefaultLimit: 1}).Match(bookings, occasions, ranking)
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Denied, "b2": Accepted, "b3": Accepted}, res.Decisions)
	})

	t.Run("DuplicateWish", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 5)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 2),
				makeBooking("b2", "a1", "o1", 1),
			})

		decisions, err := DeferredAcceptance(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Denied, "b2": Accepted}, decisions)
	})
}

func TestDeferredAcceptance_Conflicts(t *testing.T) {
	day := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	span := func(from, to int) []Timespan {
		return []Timespan{{Start: day.Add(time.Duration(from) * time.Minute), End: day.Add(time.Duration(to) * time.Minute)}}
	}

	build := func() ([]MatchableBooking, []MatchableOccasion) {
		o1 := makeOccasion("o1", 0, 5)
		o1.spans = span(600, 660) // 10:00-11:00
		o2 := makeOccasion("o2", 0, 5)
		o2.spans = span(630, 720) // 10:30-12:00
		o3 := makeOccasion("o3", 0, 5)
		o3.spans = span(690, 720) // 11:30-12:00
		return link(
			[]*testOccasion{o1, o2, o3},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a1", "o2", 2),
				makeBooking("b3", "a1", "o3", 3),
			})
	}

	t.Run("Overlap", func(t *testing.T) {
		bookings, occasions := build()
		decisions, err := DeferredAcceptance(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Accepted, "b2": Denied, "b3": Accepted}, decisions)
	})

	t.Run("MinutesBetween", func(t *testing.T) {
		bookings, occasions := build()
		res, err := DeferredAcceptanceMatcher(Config{MinutesBetween: 60}).Match(bookings, occasions, equalRanking())
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Accepted, "b2": Denied, "b3": Denied}, res.Decisions)
	})

	t.Run("BlockedWishResumes", func(t *testing.T) {
		o1 := makeOccasion("o1", 0, 1)
		o1.spans = span(600, 660)
		o2 := makeOccasion("o2", 0, 5)
		o2.spans = span(600, 660)
		o3 := makeOccasion("o3", 0, 5)
		o3.spans = span(900, 960)
		bookings, occasions := link(
			[]*testOccasion{o1, o2, o3},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a1", "o2", 2),
				makeBooking("b3", "a2", "o3", 1),
				makeBooking("b4", "a2", "o1", 2),
			})
		ranking := &mockRanking{scores: map[string]float64{"b4": 1}}

		decisions, err := DeferredAcceptance(bookings, occasions, ranking)
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Denied, "b2": Accepted, "b3": Accepted, "b4": Accepted}, decisions)
	})

	t.Run("BlockedByDuplicateResumes", func(t *testing.T) {
		bookings, occasions := link(
			[]*testOccasion{makeOccasion("o1", 0, 1), makeOccasion("o2", 0, 2)},
			[]*testBooking{
				makeBooking("b1", "a1", "o1", 1),
				makeBooking("b2", "a1", "o1", 2),
				makeBooking("b3", "a2", "o2", 1),
				makeBooking("b4", "a2", "o1", 2),
			})
		ranking := &mockRanking{scores: map[string]float64{"b2": 2, "b4": 1}}

		decisions, err := DeferredAcceptance(bookings, occasions, ranking)
		require.NoError(t, err)
		assert.Equal(t, Decisions{"b1": Denied, "b2": Accepted, "b3": Accepted, "b4": Denied}, decisions)
	})
}

func TestDeferredAcceptance_Validation(t *testing.T) {
	tests := []struct {
		name      string
		occasions []*testOccasion
		bookings  []*testBooking
		relink    bool
		want      error
	}{
		{
			name: "NoOccasions",
			want: ErrNoOccasions,
		},
		{
			name:      "MinAboveMax",
			occasions: []*testOccasion{makeOccasion("o1", 4, 2)},
			want:      ErrInvalidCapacity,
		},
		{
			name:      "NegativeSpots",
			occasions: []*testOccasion{makeOccasion("o1", -1, 2)},
			want:      ErrInvalidCapacity,
		},
		{
			name:      "DuplicateOccasion",
			occasions: []*testOccasion{makeOccasion("o1", 0, 2), makeOccasion("o1", 0, 2)},
			want:      ErrDuplicateID,
		},
		{
			name:      "DuplicateBooking",
			occasions: []*testOccasion{makeOccasion("o1", 0, 2)},
			bookings:  []*testBooking{makeBooking("b1", "a1", "o1", 1), makeBooking("b1", "a2", "o1", 1)},
			want:      ErrDuplicateID,
		},
		{
			name:      "UnknownOccasion",
			occasions: []*testOccasion{makeOccasion("o1", 0, 2)},
			bookings:  []*testBooking{makeBooking("b1", "a1", "o9", 1)},
			want:      ErrUnknownOccasion,
		},
		{
			name:      "ForeignBooking",
			occasions: []*testOccasion{makeOccasion("o1", 0, 2), makeOccasion("o2", 0, 2)},
			bookings:  []*testBooking{makeBooking("b1", "a1", "o1", 1)},
			relink:    true,
			want:      ErrInconsistentSnapshot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings, occasions := link(tt.occasions, tt.bookings)
			if tt.relink {
				tt.occasions[1].bookings = []string{"b1"}
			}
			_, err := DeferredAcceptance(bookings, occasions, equalRanking())
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("NoBookings", func(t *testing.T) {
		decisions, err := DeferredAcceptance(nil, []MatchableOccasion{makeOccasion("o1", 1, 2)}, equalRanking())
		require.NoError(t, err)
		assert.Empty(t, decisions)
	})
}

// randomInput builds a snapshot with overlapping schedules, duplicate wishes
// and attendee limits.
func randomInput(seed int64) ([]*testOccasion, []*testBooking, *mockRanking, Config) {
	rnd := rand.New(rand.NewSource(seed))
	epoch := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	var occasions []*testOccasion
	for i := 0; i < 1+rnd.Intn(6); i++ {
		lo := rnd.Intn(4)
		o := makeOccasion(fmt.Sprintf("o%d", i), lo, lo+rnd.Intn(4))
		if rnd.Intn(4) > 0 {
			start := epoch.Add(time.Duration(rnd.Intn(16)) * 30 * time.Minute)
			o.spans = []Timespan{{Start: start, End: start.Add(time.Duration(1+rnd.Intn(4)) * 30 * time.Minute)}}
		}
		occasions = append(occasions, o)
	}

	cfg := Config{
		DefaultLimit:   rnd.Intn(3),
		AttendeeLimits: map[string]int{},
		MinutesBetween: 15 * rnd.Intn(3),
	}

	ranking := &mockRanking{scores: map[string]float64{}}
	var bookings []*testBooking
	for a := 0; a < 1+rnd.Intn(15); a++ {
		attendee := fmt.Sprintf("a%d", a)
		if rnd.Intn(4) == 0 {
			cfg.AttendeeLimits[attendee] = rnd.Intn(3)
		}
		wishes := rnd.Perm(len(occasions))[:rnd.Intn(len(occasions)+1)]
		if len(wishes) > 0 && rnd.Intn(5) == 0 {
			wishes = append(wishes, wishes[rnd.Intn(len(wishes))])
		}
		for _, k := range wishes {
			b := makeBooking(fmt.Sprintf("b%d", len(bookings)), attendee, occasions[k].id, 1+rnd.Intn(3))
			b.created = epoch.Add(time.Duration(rnd.Intn(1000)) * time.Minute)
			ranking.scores[b.id] = float64(rnd.Intn(3))
			bookings = append(bookings, b)
		}
	}
	return occasions, bookings, ranking, cfg
}

func testLimit(cfg Config, attendee string) int {
	if limit, ok := cfg.AttendeeLimits[attendee]; ok {
		return limit
	}
	if cfg.DefaultLimit > 0 {
		return cfg.DefaultLimit
	}
	return -1
}

func clash(a, b *testOccasion, gap time.Duration) bool {
	if a == b {
		return true
	}
	for _, x := range a.spans {
		for _, y := range b.spans {
			if x.Overlaps(y, gap) {
				return true
			}
		}
	}
	return false
}

func TestDeferredAcceptance_Properties(t *testing.T) {
	for seed := int64(1); seed <= 200; seed++ {
		occasions, bookings, ranking, cfg := randomInput(seed)
		bs, os := link(occasions, bookings)
		gap := time.Duration(cfg.MinutesBetween) * time.Minute

		res, err := DeferredAcceptanceMatcher(cfg).Match(bs, os, ranking)
		require.NoError(t, err, "seed %d", seed)

		// conservation
		require.Len(t, res.Decisions, len(bookings), "seed %d", seed)

		byID := make(map[string]*testOccasion)
		for _, o := range occasions {
			byID[o.id] = o
		}
		below := make(map[string]bool)
		for _, id := range res.BelowMinimum {
			below[id] = true
		}
		accepted := make(map[string][]*testBooking)
		// held lists, per attendee, the bookings still seated when the
		// proposals ended: the accepted ones and those released for
		// missing the minimum.
		held := make(map[string][]*testBooking)
		for _, b := range bookings {
			if res.Decisions[b.id] == Accepted {
				accepted[b.occasion] = append(accepted[b.occasion], b)
				held[b.attendee] = append(held[b.attendee], b)
			}
		}

		// capacity
		for _, o := range occasions {
			n := len(accepted[o.id])
			assert.LessOrEqual(t, n, o.max, "seed %d occasion %s", seed, o.id)
			assert.True(t, n == 0 || n >= o.min, "seed %d occasion %s holds %d of min %d", seed, o.id, n, o.min)
		}

		// attendee side: limits, no duplicates, no overlaps
		for attendee, hs := range held {
			if limit := testLimit(cfg, attendee); limit >= 0 {
				assert.LessOrEqual(t, len(hs), limit, "seed %d attendee %s", seed, attendee)
			}
			for i := range hs {
				for j := i + 1; j < len(hs); j++ {
					assert.False(t, clash(byID[hs[i].occasion], byID[hs[j].occasion], gap),
						"seed %d: %s and %s clash", seed, hs[i].id, hs[j].id)
				}
			}
		}
		for _, b := range bookings {
			if res.Decisions[b.id] == Denied && below[b.occasion] {
				held[b.attendee] = append(held[b.attendee], b)
			}
		}

		// stability: a denied booking at a viable occasion either lost its
		// seat to better ranked bookings at a full occasion, or its attendee
		// was at its limit or held a clashing booking.
		for _, b := range bookings {
			if res.Decisions[b.id] == Accepted || below[b.occasion] {
				continue
			}
			o := byID[b.occasion]
			outranked := len(accepted[o.id]) == o.max
			for _, h := range accepted[o.id] {
				less, err := ranking.Less(o, h, b)
				require.NoError(t, err)
				outranked = outranked && less
			}
			if outranked {
				continue
			}

			limit := testLimit(cfg, b.attendee)
			justified := limit >= 0 && len(held[b.attendee]) >= limit
			for _, h := range held[b.attendee] {
				if h != b && clash(byID[h.occasion], o, gap) {
					justified = true
				}
			}
			assert.True(t, justified, "seed %d: %s denied at %s with %d of %d seats taken",
				seed, b.id, o.id, len(accepted[o.id]), o.max)
		}
	}
}

func TestDeferredAcceptance_Deterministic(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		occasions, bookings, ranking, cfg := randomInput(seed)
		bs, os := link(occasions, bookings)
		m := DeferredAcceptanceMatcher(cfg)

		first, err := m.Match(bs, os, ranking)
		require.NoError(t, err)

		again, err := m.Match(bs, os, ranking)
		require.NoError(t, err)
		assert.Equal(t, first, again, "seed %d", seed)

		reversed := make([]MatchableBooking, len(bs))
		for i, b := range bs {
			reversed[len(bs)-1-i] = b
		}
		shuffled, err := m.Match(reversed, os, ranking)
		require.NoError(t, err)
		assert.Equal(t, first, shuffled, "seed %d", seed)
	}
}

func TestDecisions(t *testing.T) {
	ds := Decisions{"b2": Accepted, "b1": Accepted, "b3": Denied}
	assert.Equal(t, []string{"b1", "b2"}, ds.IDs(Accepted))
	assert.Equal(t, []string{"b3"}, ds.IDs(Denied))
	assert.Equal(t, 2, ds.Count(Accepted))
	assert.Equal(t, "denied", Denied.String())
}
