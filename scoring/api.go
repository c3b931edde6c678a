// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scoring ranks the bookings competing for the seats of an occasion.
package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/someonegg/activitymatch"
)

// Criterion scores one booking for one occasion; higher scores rank ahead.
type Criterion interface {
	Name() string
	Score(c *Context, o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) (float64, error)
}

type Attendee struct {
	BirthDate     time.Time
	GuardianID    string
	GuardianAdmin bool
	Association   string
}

type Occasion struct {
	AgeMin, AgeMax int // both 0 when the occasion has no age bracket
	Start          time.Time
	OrganiserID    string
	Association    string
}

// Context holds the read-only aggregates of one run. It is built before
// the run starts and never queried against the store during comparisons.
type Context struct {
	Attendees map[string]Attendee
	Occasions map[string]Occasion

	// AcceptedElsewhere counts the bookings an attendee already holds
	// outside the run.
	AcceptedElsewhere map[string]int

	// Reference is used for ages when the occasion has no start.
	Reference time.Time
}

func NewContext(reference time.Time) *Context {
	return &Context{
		Attendees:         make(map[string]Attendee),
		Occasions:         make(map[string]Occasion),
		AcceptedElsewhere: make(map[string]int),
		Reference:         reference,
	}
}

func (c *Context) attendee(id string) (Attendee, error) {
	a, ok := c.Attendees[id]
	if !ok {
		return a, fmt.Errorf("attendee %s: %w", id, ErrMissingData)
	}
	return a, nil
}

func (c *Context) occasion(id string) (Occasion, error) {
	o, ok := c.Occasions[id]
	if !ok {
		return o, fmt.Errorf("occasion %s: %w", id, ErrMissingData)
	}
	return o, nil
}

// AgeOf returns the attendee's age in whole years at the occasion start.
func (c *Context) AgeOf(attendeeID, occasionID string) (int, error) {
	a, err := c.attendee(attendeeID)
	if err != nil {
		return 0, err
	}
	o, err := c.occasion(occasionID)
	if err != nil {
		return 0, err
	}
	if a.BirthDate.IsZero() {
		return 0, fmt.Errorf("attendee %s birth date: %w", attendeeID, ErrMissingData)
	}

	ref := o.Start
	if ref.IsZero() {
		ref = c.Reference
	}
	if ref.IsZero() {
		return 0, fmt.Errorf("occasion %s start: %w", occasionID, ErrMissingData)
	}

	return yearsBetween(a.BirthDate, ref), nil
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || to.Month() == from.Month() && to.Day() < from.Day() {
		years--
	}
	return years
}

var (
	ErrMissingData  = errors.New("missing scoring data")
	ErrInvalidScore = errors.New("invalid score")
)
