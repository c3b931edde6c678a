// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scoring

import (
	"fmt"
	"math"

	"github.com/someonegg/activitymatch"
)

// Scoring is an immutable, ordered list of criteria. Earlier criteria
// dominate later ones.
type Scoring struct {
	criteria []Criterion
}

func New(criteria ...Criterion) *Scoring {
	return &Scoring{criteria: append([]Criterion(nil), criteria...)}
}

// Default prefers motivated attendees only.
func Default() *Scoring {
	return New(PreferMotivated{})
}

// With returns a copy with the criteria appended.
func (s *Scoring) With(criteria ...Criterion) *Scoring {
	return New(append(s.Criteria(), criteria...)...)
}

// Without returns a copy without the named criterion.
func (s *Scoring) Without(name string) *Scoring {
	var kept []Criterion
	for _, c := range s.criteria {
		if c.Name() != name {
			kept = append(kept, c)
		}
	}
	return New(kept...)
}

// Override returns a copy in which the named criterion yields the recorded
// scores for the recorded pairs.
func (s *Scoring) Override(name string, records []OverrideRecord) *Scoring {
	criteria := s.Criteria()
	for i, c := range criteria {
		if c.Name() == name {
			criteria[i] = NewOverride(c, records)
		}
	}
	return New(criteria...)
}

func (s *Scoring) Criteria() []Criterion {
	return append([]Criterion(nil), s.criteria...)
}

func (s *Scoring) Names() []string {
	names := make([]string, len(s.criteria))
	for i, c := range s.criteria {
		names[i] = c.Name()
	}
	return names
}

// Bind returns the comparator of one run.
func (s *Scoring) Bind(c *Context) *Ranking {
	return &Ranking{
		criteria: s.Criteria(),
		ctx:      c,
		memo:     make(map[rankKey][]float64),
	}
}

type rankKey struct {
	occasion string
	booking  string
}

// Ranking compares bookings by their criteria scores, then by priority,
// creation time and id. Every criterion is evaluated once per booking.
type Ranking struct {
	criteria []Criterion
	ctx      *Context
	memo     map[rankKey][]float64
}

var _ activitymatch.Ranking = (*Ranking)(nil)

// Scores returns the criteria scores of b at o, in criteria order.
func (r *Ranking) Scores(o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) ([]float64, error) {
	key := rankKey{o.ID(), b.ID()}
	if scores, ok := r.memo[key]; ok {
		return scores, nil
	}

	scores := make([]float64, len(r.criteria))
	for i, c := range r.criteria {
		v, err := c.Score(r.ctx, o, b)
		if err != nil {
			return nil, fmt.Errorf("%s, booking %s: %w", c.Name(), b.ID(), err)
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%s, booking %s: NaN: %w", c.Name(), b.ID(), ErrInvalidScore)
		}
		scores[i] = v
	}

	r.memo[key] = scores
	return scores, nil
}

func (r *Ranking) Less(o activitymatch.MatchableOccasion, a, b activitymatch.MatchableBooking) (bool, error) {
	sa, err := r.Scores(o, a)
	if err != nil {
		return false, err
	}
	sb, err := r.Scores(o, b)
	if err != nil {
		return false, err
	}

	for i := range sa {
		if sa[i] != sb[i] {
			return sa[i] > sb[i], nil
		}
	}

	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority(), nil
	}

	ta, okA := a.(activitymatch.Timestamped)
	tb, okB := b.(activitymatch.Timestamped)
	if okA && okB && !ta.CreatedAt().Equal(tb.CreatedAt()) {
		return ta.CreatedAt().Before(tb.CreatedAt()), nil
	}

	return a.ID() < b.ID(), nil
}
