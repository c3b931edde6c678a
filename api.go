// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package activitymatch assigns attendee bookings to capacity-limited
// occasions with a stable, many-to-one deferred-acceptance matching.
package activitymatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type MatchableBooking interface {
	ID() string
	AttendeeID() string
	OccasionID() string

	// Priority is the attendee's own rank of the booking, lower is preferred.
	Priority() int
}

type MatchableOccasion interface {
	ID() string
	SpotsMin() int
	SpotsMax() int

	// BookingIDs lists the bookings proposing to the occasion.
	BookingIDs() []string
}

// Timestamped bookings are ordered by creation time when everything else ties.
type Timestamped interface {
	CreatedAt() time.Time
}

// Scheduled occasions take part in the conflict check.
type Scheduled interface {
	Timespans() []Timespan
}

type Timespan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the spans intersect once each is widened by gap.
func (t Timespan) Overlaps(o Timespan, gap time.Duration) bool {
	return t.Start.Add(-gap).Before(o.End) && o.Start.Add(-gap).Before(t.End)
}

// Ranking orders the bookings competing for the seats of one occasion.
type Ranking interface {
	// Less reports whether a is seated ahead of b at o. It must be a strict
	// total order over the bookings of o.
	Less(o MatchableOccasion, a, b MatchableBooking) (bool, error)
}

type Matcher interface {
	Match(bookings []MatchableBooking, occasions []MatchableOccasion, ranking Ranking) (*Result, error)
}

type Config struct {
	// DefaultLimit caps the accepted bookings of every attendee, 0 is unlimited.
	DefaultLimit int

	// AttendeeLimits overrides DefaultLimit per attendee id. An override of
	// 0 keeps the attendee from holding anything.
	AttendeeLimits map[string]int

	// MinutesBetween widens the conflict check between scheduled occasions.
	MinutesBetween int

	Log logrus.FieldLogger // can be nil
}

type Decision int

const (
	Denied Decision = iota
	Accepted
)

func (d Decision) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "denied"
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "accepted":
		*d = Accepted
	case "denied":
		*d = Denied
	default:
		return fmt.Errorf("unknown decision %q", text)
	}
	return nil
}

type Decisions map[string]Decision // bookingID

// IDs returns the sorted booking ids with decision d.
func (ds Decisions) IDs(d Decision) []string {
	return sortedKeys(ds, func(v Decision) bool { return v == d })
}

func (ds Decisions) Count(d Decision) int {
	n := 0
	for _, v := range ds {
		if v == d {
			n++
		}
	}
	return n
}

type Result struct {
	Decisions Decisions

	// BelowMinimum lists the occasions released by the viability pass.
	BelowMinimum []string
}

var (
	ErrNoOccasions          = errors.New("no occasions to match")
	ErrInvalidCapacity      = errors.New("invalid occasion capacity")
	ErrDuplicateID          = errors.New("duplicate id")
	ErrUnknownOccasion      = errors.New("booking references unknown occasion")
	ErrInconsistentSnapshot = errors.New("occasion lists a foreign booking")
)
