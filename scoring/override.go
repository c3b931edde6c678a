// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scoring

import "github.com/someonegg/activitymatch"

type OverrideRecord struct {
	OverrideKey
	OverrideVal
}

type OverrideKey struct {
	Occasion string
	Attendee string
}

type OverrideVal struct {
	Score float64
}

type overrideCriterion struct {
	orig Criterion
	recs map[OverrideKey]OverrideVal
}

// NewOverride wraps orig so that the recorded attendee/occasion pairs get a
// fixed score, e.g. when an administrator vouches for a child.
func NewOverride(orig Criterion, records []OverrideRecord) Criterion {
	recs := make(map[OverrideKey]OverrideVal)
	for _, rec := range records {
		recs[rec.OverrideKey] = rec.OverrideVal
	}
	return &overrideCriterion{
		orig: orig,
		recs: recs,
	}
}

func (c *overrideCriterion) Name() string {
	return c.orig.Name()
}

func (c *overrideCriterion) Score(ctx *Context, o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) (float64, error) {
	key := OverrideKey{Occasion: o.ID(), Attendee: b.AttendeeID()}
	if val, ok := c.recs[key]; ok {
		return val.Score, nil
	}
	return c.orig.Score(ctx, o, b)
}
