// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/someonegg/activitymatch"
	"github.com/someonegg/activitymatch/period"
)

type pgTx struct {
	tx  pgx.Tx
	now func() time.Time
}

const selectPeriod = `SELECT id, title, active, confirmed, booking_limit, minutes_between, execution_start
	FROM periods
	WHERE id = $1`

// LockPeriod takes the period row lock; a second run on the same period
// blocks here until the first one commits or rolls back.
func (t *pgTx) LockPeriod(ctx context.Context, periodID string) (*period.Period, error) {
	return t.period(ctx, selectPeriod+" FOR UPDATE", periodID)
}

// Period reads the row without waiting for a run in progress.
func (t *pgTx) Period(ctx context.Context, periodID string) (*period.Period, error) {
	return t.period(ctx, selectPeriod, periodID)
}

func (t *pgTx) period(ctx context.Context, query, periodID string) (*period.Period, error) {
	var (
		p     period.Period
		start *time.Time
	)
	err := t.tx.QueryRow(ctx, query, periodID).Scan(&p.ID, &p.Title, &p.Active, &p.Confirmed, &p.BookingLimit, &p.MinutesBetween, &start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("period %s: %w", periodID, period.ErrPeriodNotFound)
		}
		return nil, fmt.Errorf("get period row: %w", err)
	}
	if start != nil {
		p.ExecutionStart = start.UTC()
	}
	return &p, nil
}

func (t *pgTx) Occasions(ctx context.Context, periodID string) ([]*period.Occasion, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, period_id, title, spots_min, spots_max, age_min, age_max,
		        organiser_id, association, cancelled
		 FROM occasions
		 WHERE period_id = $1
		 ORDER BY id`,
		periodID,
	)
	if err != nil {
		return nil, fmt.Errorf("list occasions: %w", err)
	}
	defer rows.Close()

	var occasions []*period.Occasion
	index := make(map[string]*period.Occasion)
	for rows.Next() {
		var o period.Occasion
		if err := rows.Scan(&o.ID, &o.PeriodID, &o.Title, &o.SpotsMin, &o.SpotsMax, &o.AgeMin, &o.AgeMax,
			&o.OrganiserID, &o.Association, &o.Cancelled); err != nil {
			return nil, fmt.Errorf("scan occasion: %w", err)
		}
		occasions = append(occasions, &o)
		index[o.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = t.tx.Query(ctx,
		`SELECT d.occasion_id, d.start_at, d.end_at
		 FROM occasion_dates d
		 JOIN occasions o ON o.id = d.occasion_id
		 WHERE o.period_id = $1
		 ORDER BY d.occasion_id, d.start_at`,
		periodID,
	)
	if err != nil {
		return nil, fmt.Errorf("list occasion dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			span activitymatch.Timespan
		)
		if err := rows.Scan(&id, &span.Start, &span.End); err != nil {
			return nil, fmt.Errorf("scan occasion date: %w", err)
		}
		if o, ok := index[id]; ok {
			span.Start, span.End = span.Start.UTC(), span.End.UTC()
			o.Dates = append(o.Dates, span)
		}
	}
	return occasions, rows.Err()
}

func (t *pgTx) Attendees(ctx context.Context, periodID string) ([]*period.Attendee, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, name, birth_date, guardian_id, guardian_admin, association, booking_limit
		 FROM attendees
		 WHERE id IN (SELECT attendee_id FROM bookings WHERE period_id = $1)
		 ORDER BY id`,
		periodID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []*period.Attendee
	for rows.Next() {
		var (
			a     period.Attendee
			birth *time.Time
		)
		if err := rows.Scan(&a.ID, &a.Name, &birth, &a.GuardianID, &a.GuardianAdmin, &a.Association, &a.Limit); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		if birth != nil {
			a.BirthDate = birth.UTC()
		}
		attendees = append(attendees, &a)
	}
	return attendees, rows.Err()
}

func (t *pgTx) Bookings(ctx context.Context, periodID string, states ...period.BookingState) ([]*period.Booking, error) {
	query := `SELECT id, period_id, attendee_id, occasion_id, priority, state, created_at, updated_at
		 FROM bookings
		 WHERE period_id = $1`
	args := []any{periodID}
	if len(states) > 0 {
		ss := make([]string, len(states))
		for i, s := range states {
			ss[i] = string(s)
		}
		query += ` AND state = ANY($2)`
		args = append(args, ss)
	}
	query += ` ORDER BY id`

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*period.Booking
	for rows.Next() {
		var (
			b     period.Booking
			state string
		)
		if err := rows.Scan(&b.ID, &b.PeriodID, &b.AttendeeID, &b.OccasionID, &b.Priority, &state,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.State = period.BookingState(state)
		b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
		bookings = append(bookings, &b)
	}
	return bookings, rows.Err()
}

func (t *pgTx) SetBookingStates(ctx context.Context, state period.BookingState, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings SET state = $1, updated_at = $2
		 WHERE id = ANY($3) AND state = 'open'`,
		string(state), t.now(), ids,
	)
	if err != nil {
		return fmt.Errorf("update booking states: %w", err)
	}
	if n := tag.RowsAffected(); n != int64(len(ids)) {
		return fmt.Errorf("%d of %d bookings updated: %w", n, len(ids), period.ErrConcurrentUpdate)
	}
	return nil
}
