// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package period runs the deferred-acceptance matching over the bookings of
// one booking period kept in a store.
package period

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/someonegg/activitymatch"
)

type Period struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Active    bool   `json:"active"`
	Confirmed bool   `json:"confirmed"`

	// BookingLimit caps the accepted bookings per attendee, 0 is unlimited.
	BookingLimit   int `json:"booking_limit"`
	MinutesBetween int `json:"minutes_between"`

	// ExecutionStart is the reference date for ages of undated occasions.
	ExecutionStart time.Time `json:"execution_start"`
}

type Occasion struct {
	ID          string                   `json:"id"`
	PeriodID    string                   `json:"period_id"`
	Title       string                   `json:"title"`
	SpotsMin    int                      `json:"spots_min"`
	SpotsMax    int                      `json:"spots_max"`
	AgeMin      int                      `json:"age_min"`
	AgeMax      int                      `json:"age_max"`
	OrganiserID string                   `json:"organiser_id"`
	Association string                   `json:"association"`
	Cancelled   bool                     `json:"cancelled"`
	Dates       []activitymatch.Timespan `json:"dates"`
}

// Start returns the earliest date of the occasion, zero when it has none.
func (o *Occasion) Start() time.Time {
	var start time.Time
	for _, d := range o.Dates {
		if start.IsZero() || d.Start.Before(start) {
			start = d.Start
		}
	}
	return start
}

type Attendee struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	BirthDate     time.Time `json:"birth_date"`
	GuardianID    string    `json:"guardian_id"`
	GuardianAdmin bool      `json:"guardian_admin"`
	Association   string    `json:"association"`

	// Limit overrides the period's booking limit, 0 is unlimited.
	Limit *int `json:"limit,omitempty"`
}

type BookingState string

const (
	StateOpen      BookingState = "open"
	StateAccepted  BookingState = "accepted"
	StateDenied    BookingState = "denied"
	StateCancelled BookingState = "cancelled"
	StateBlocked   BookingState = "blocked"
)

func (s BookingState) Valid() bool {
	switch s {
	case StateOpen, StateAccepted, StateDenied, StateCancelled, StateBlocked:
		return true
	}
	return false
}

type Booking struct {
	ID         string       `json:"id"`
	PeriodID   string       `json:"period_id"`
	AttendeeID string       `json:"attendee_id"`
	OccasionID string       `json:"occasion_id"`
	Priority   int          `json:"priority"`
	State      BookingState `json:"state"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Store opens transactions over the period data.
type Store interface {
	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	// LockPeriod loads the period and keeps other runs on it waiting until
	// the transaction ends.
	LockPeriod(ctx context.Context, periodID string) (*Period, error)

	// Period loads the period without locking it.
	Period(ctx context.Context, periodID string) (*Period, error)

	Occasions(ctx context.Context, periodID string) ([]*Occasion, error)

	// Attendees returns the attendees with bookings in the period.
	Attendees(ctx context.Context, periodID string) ([]*Attendee, error)

	// Bookings returns the bookings of the period in the given states, all
	// of them when no state is given.
	Bookings(ctx context.Context, periodID string, states ...BookingState) ([]*Booking, error)

	// SetBookingStates moves open bookings to state. It fails with
	// ErrConcurrentUpdate unless every id was still open.
	SetBookingStates(ctx context.Context, state BookingState, ids []string) error
}

// Locker serializes runs across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// Publisher announces committed runs.
type Publisher interface {
	Publish(ctx context.Context, summ *Summary) error
}

type Matcher struct {
	// DryRun computes and reports the decisions without writing them.
	DryRun bool

	Lock   Locker             // can be nil
	Notify Publisher          // can be nil
	Log    logrus.FieldLogger // can be nil
	Now    func() time.Time   // can be nil
}

type Summary struct {
	PeriodID              string                  `json:"period_id"`
	DryRun                bool                    `json:"dry_run"`
	Accepted              int                     `json:"accepted"`
	Denied                int                     `json:"denied"`
	OccasionsBelowMinimum []string                `json:"occasions_below_minimum"`
	Decisions             activitymatch.Decisions `json:"decisions,omitempty"`
	Started               time.Time               `json:"started"`
	Finished              time.Time               `json:"finished"`
}

var (
	ErrPeriodNotFound   = errors.New("period not found")
	ErrPeriodInactive   = errors.New("period is not active")
	ErrPeriodConfirmed  = errors.New("period is already confirmed")
	ErrConcurrentUpdate = errors.New("bookings changed during the run")
)
