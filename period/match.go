// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package period

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/someonegg/activitymatch"
	"github.com/someonegg/activitymatch/scoring"
)

// DeferredAcceptanceFromDatabase runs a default Matcher.
func DeferredAcceptanceFromDatabase(ctx context.Context, store Store, periodID string, sc *scoring.Scoring) (*Summary, error) {
	return (&Matcher{}).DeferredAcceptanceFromDatabase(ctx, store, periodID, sc)
}

var errDryRun = errors.New("dry run")

// DeferredAcceptanceFromDatabase matches the open bookings of the period and
// writes the decisions back in the same transaction. Bookings accepted in
// earlier runs stay untouched and count against the seats and limits.
func (m *Matcher) DeferredAcceptanceFromDatabase(ctx context.Context, store Store, periodID string, sc *scoring.Scoring) (*Summary, error) {
	log := m.logger().WithField("period", periodID)
	if sc == nil {
		sc = scoring.Default()
	}

	if m.Lock != nil {
		unlock, err := m.Lock.Lock(ctx, "period:"+periodID)
		if err != nil {
			return nil, fmt.Errorf("lock period %s: %w", periodID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("release run lock")
			}
		}()
	}

	summ := &Summary{PeriodID: periodID, DryRun: m.DryRun, Started: m.now()}

	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		in, err := m.load(ctx, tx, periodID, log)
		if err != nil {
			return err
		}

		res, err := in.match(sc, log)
		if err != nil {
			return err
		}

		summ.Decisions = res.Decisions
		summ.Accepted = res.Decisions.Count(activitymatch.Accepted)
		summ.Denied = res.Decisions.Count(activitymatch.Denied)
		summ.OccasionsBelowMinimum = res.BelowMinimum
		if summ.OccasionsBelowMinimum == nil {
			summ.OccasionsBelowMinimum = []string{}
		}

		if m.DryRun {
			return errDryRun
		}

		if err := tx.SetBookingStates(ctx, StateAccepted, res.Decisions.IDs(activitymatch.Accepted)); err != nil {
			return fmt.Errorf("write accepted bookings: %w", err)
		}
		if err := tx.SetBookingStates(ctx, StateDenied, res.Decisions.IDs(activitymatch.Denied)); err != nil {
			return fmt.Errorf("write denied bookings: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}
	summ.Finished = m.now()

	log.WithFields(logrus.Fields{
		"accepted":      summ.Accepted,
		"denied":        summ.Denied,
		"below_minimum": len(summ.OccasionsBelowMinimum),
		"dry_run":       summ.DryRun,
		"elapsed":       summ.Finished.Sub(summ.Started).String(),
	}).Info("deferred acceptance finished")

	if !m.DryRun && m.Notify != nil {
		if err := m.Notify.Publish(ctx, summ); err != nil {
			log.WithError(err).Warn("publish summary")
		}
	}

	return summ, nil
}

func (m *Matcher) logger() logrus.FieldLogger {
	if m.Log != nil {
		return m.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (m *Matcher) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// input is everything one run reads from the store.
type input struct {
	period    *Period
	occasions []*occasionAdapter
	open      []*Booking
	blocked   []string // open bookings denied before the run

	config activitymatch.Config
	facts  *scoring.Context
}

func (m *Matcher) load(ctx context.Context, tx Tx, periodID string, log logrus.FieldLogger) (*input, error) {
	p, err := tx.LockPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("period %s: %w", periodID, ErrPeriodInactive)
	}
	if p.Confirmed {
		return nil, fmt.Errorf("period %s: %w", periodID, ErrPeriodConfirmed)
	}

	occasions, err := tx.Occasions(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load occasions: %w", err)
	}
	attendees, err := tx.Attendees(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load attendees: %w", err)
	}
	open, err := tx.Bookings(ctx, periodID, StateOpen)
	if err != nil {
		return nil, fmt.Errorf("load open bookings: %w", err)
	}
	accepted, err := tx.Bookings(ctx, periodID, StateAccepted)
	if err != nil {
		return nil, fmt.Errorf("load accepted bookings: %w", err)
	}

	return prepare(p, occasions, attendees, open, accepted, m.now(), log)
}

func prepare(p *Period, occasions []*Occasion, attendees []*Attendee, open, accepted []*Booking,
	now time.Time, log logrus.FieldLogger) (*input, error) {

	reference := p.ExecutionStart
	if reference.IsZero() {
		reference = now
	}

	in := &input{
		period: p,
		facts:  scoring.NewContext(reference),
		config: activitymatch.Config{
			AttendeeLimits: make(map[string]int),
			MinutesBetween: p.MinutesBetween,
			Log:            log,
		},
	}

	index := make(map[string]*occasionAdapter, len(occasions))
	for _, o := range occasions {
		if o.Cancelled {
			continue
		}
		if o.SpotsMin < 0 || o.SpotsMax < 0 || o.SpotsMin > o.SpotsMax {
			return nil, fmt.Errorf("occasion %s (spots %d..%d): %w",
				o.ID, o.SpotsMin, o.SpotsMax, activitymatch.ErrInvalidCapacity)
		}
		a := &occasionAdapter{Occasion: o}
		index[o.ID] = a
		in.occasions = append(in.occasions, a)
		in.facts.Occasions[o.ID] = scoring.Occasion{
			AgeMin:      o.AgeMin,
			AgeMax:      o.AgeMax,
			Start:       o.Start(),
			OrganiserID: o.OrganiserID,
			Association: o.Association,
		}
	}
	if len(in.occasions) == 0 {
		return nil, fmt.Errorf("period %s: %w", p.ID, activitymatch.ErrNoOccasions)
	}

	held := make(map[string][]*Occasion) // attendee -> occasions accepted earlier
	for _, b := range accepted {
		if a, ok := index[b.OccasionID]; ok {
			a.accepted++
			held[b.AttendeeID] = append(held[b.AttendeeID], a.Occasion)
		}
		in.facts.AcceptedElsewhere[b.AttendeeID]++
	}

	for _, a := range attendees {
		limit := p.BookingLimit
		if a.Limit != nil {
			limit = *a.Limit
		}
		if limit > 0 {
			in.config.AttendeeLimits[a.ID] = max(0, limit-in.facts.AcceptedElsewhere[a.ID])
		}
		in.facts.Attendees[a.ID] = scoring.Attendee{
			BirthDate:     a.BirthDate,
			GuardianID:    a.GuardianID,
			GuardianAdmin: a.GuardianAdmin,
			Association:   a.Association,
		}
	}
	if p.BookingLimit > 0 {
		// attendees missing from the store get the period limit
		for _, b := range open {
			if _, ok := in.facts.Attendees[b.AttendeeID]; !ok {
				in.config.AttendeeLimits[b.AttendeeID] = max(0, p.BookingLimit-in.facts.AcceptedElsewhere[b.AttendeeID])
			}
		}
	}

	gap := time.Duration(p.MinutesBetween) * time.Minute
	for _, b := range open {
		a, ok := index[b.OccasionID]
		if !ok {
			log.WithFields(logrus.Fields{
				"booking":  b.ID,
				"occasion": b.OccasionID,
			}).Debug("booking of a cancelled occasion denied")
			in.blocked = append(in.blocked, b.ID)
			continue
		}
		if clashes(a.Occasion, held[b.AttendeeID], gap) {
			in.blocked = append(in.blocked, b.ID)
			continue
		}
		a.bookings = append(a.bookings, b.ID)
		in.open = append(in.open, b)
	}

	return in, nil
}

// clashes reports whether o collides with an occasion the attendee already
// holds.
func clashes(o *Occasion, held []*Occasion, gap time.Duration) bool {
	for _, h := range held {
		if h.ID == o.ID {
			return true
		}
		for _, x := range h.Dates {
			for _, y := range o.Dates {
				if x.Overlaps(y, gap) {
					return true
				}
			}
		}
	}
	return false
}

func (in *input) match(sc *scoring.Scoring, log logrus.FieldLogger) (*activitymatch.Result, error) {
	bookings := make([]activitymatch.MatchableBooking, len(in.open))
	for i, b := range in.open {
		bookings[i] = bookingAdapter{b}
	}
	occasions := make([]activitymatch.MatchableOccasion, len(in.occasions))
	for i, o := range in.occasions {
		occasions[i] = o
	}

	res, err := activitymatch.DeferredAcceptanceMatcher(in.config).Match(bookings, occasions, sc.Bind(in.facts))
	if err != nil {
		return nil, err
	}

	if len(in.blocked) > 0 {
		sort.Strings(in.blocked)
		log.WithField("bookings", in.blocked).Debug("bookings denied before the run")
	}
	for _, id := range in.blocked {
		res.Decisions[id] = activitymatch.Denied
	}
	return res, nil
}
