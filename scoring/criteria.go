// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scoring

import (
	"fmt"
	"math"

	"github.com/someonegg/activitymatch"
)

const (
	NameMotivated    = "prefer_motivated"
	NameInAgeBracket = "prefer_in_age_bracket"
	NameOrganiser    = "prefer_organiser"
	NameAssociation  = "prefer_association"
	NameAdmins       = "prefer_admins"
)

// PreferMotivated ranks attendees with fewer acceptances elsewhere ahead.
type PreferMotivated struct{}

func (PreferMotivated) Name() string { return NameMotivated }

func (PreferMotivated) Score(c *Context, o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) (float64, error) {
	return -float64(c.AcceptedElsewhere[b.AttendeeID()]), nil
}

// PreferInAgeBracket scores 1 inside the occasion's age bracket and decays
// linearly with the distance to it, measured in bracket widths.
type PreferInAgeBracket struct{}

func (PreferInAgeBracket) Name() string { return NameInAgeBracket }

func (PreferInAgeBracket) Score(c *Context, o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) (float64, error) {
	occ, err := c.occasion(o.ID())
	if err != nil {
		return 0, err
	}
	if occ.AgeMin == 0 && occ.AgeMax == 0 {
		return 1.0, nil
	}
	if occ.AgeMin > occ.AgeMax {
		return 0, fmt.Errorf("occasion %s age bracket %d..%d: %w", o.ID(), occ.AgeMin, occ.AgeMax, ErrInvalidScore)
	}

	age, err := c.AgeOf(b.AttendeeID(), o.ID())
	if err != nil {
		return 0, err
	}
	if occ.AgeMin <= age && age <= occ.AgeMax {
		return 1.0, nil
	}

	width := occ.AgeMax - occ.AgeMin
	if width == 0 {
		return 0, nil
	}
	diff := math.Min(math.Abs(float64(occ.AgeMin-age)), math.Abs(float64(age-occ.AgeMax)))
	return 1 - math.Min(1.0, diff/float64(width)), nil
}

// PreferOrganiserChildren ranks children of the occasion's organiser ahead.
type PreferOrganiserChildren struct{}

func (PreferOrganiserChildren) Name() string { return NameOrganiser }

func (PreferOrganiserChildren) Score(c *Context, o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) (float64, error) {
	a, err := c.attendee(b.AttendeeID())
	if err != nil {
		return 0, err
	}
	occ, err := c.occasion(o.ID())
	if err != nil {
		return 0, err
	}
	return flag(occ.OrganiserID != "" && a.GuardianID == occ.OrganiserID), nil
}

// PreferAssociationChildren ranks children whose guardian belongs to the
// umbrella association running the occasion ahead.
type PreferAssociationChildren struct{}

func (PreferAssociationChildren) Name() string { return NameAssociation }

func (PreferAssociationChildren) Score(c *Context, o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) (float64, error) {
	a, err := c.attendee(b.AttendeeID())
	if err != nil {
		return 0, err
	}
	occ, err := c.occasion(o.ID())
	if err != nil {
		return 0, err
	}
	return flag(occ.Association != "" && a.Association == occ.Association), nil
}

// PreferAdminChildren ranks children of administrators ahead.
type PreferAdminChildren struct{}

func (PreferAdminChildren) Name() string { return NameAdmins }

func (PreferAdminChildren) Score(c *Context, o activitymatch.MatchableOccasion, b activitymatch.MatchableBooking) (float64, error) {
	a, err := c.attendee(b.AttendeeID())
	if err != nil {
		return 0, err
	}
	return flag(a.GuardianAdmin), nil
}

func flag(v bool) float64 {
	if v {
		return 1.0
	}
	return 0.0
}
