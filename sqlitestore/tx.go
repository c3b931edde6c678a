// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/someonegg/activitymatch"
	"github.com/someonegg/activitymatch/period"
)

type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

// LockPeriod needs no row lock: the immediate transaction already holds the
// database write lock.
func (t *sqlTx) LockPeriod(ctx context.Context, periodID string) (*period.Period, error) {
	return t.Period(ctx, periodID)
}

func (t *sqlTx) Period(ctx context.Context, periodID string) (*period.Period, error) {
	var (
		p     period.Period
		start sql.NullString
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, title, active, confirmed, booking_limit, minutes_between, execution_start
		 FROM periods WHERE id = ?`,
		periodID,
	).Scan(&p.ID, &p.Title, &p.Active, &p.Confirmed, &p.BookingLimit, &p.MinutesBetween, &start)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("period %s: %w", periodID, period.ErrPeriodNotFound)
		}
		return nil, fmt.Errorf("get period: %w", err)
	}
	if p.ExecutionStart, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("period %s execution start: %w", periodID, err)
	}
	return &p, nil
}

func (t *sqlTx) Occasions(ctx context.Context, periodID string) ([]*period.Occasion, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, period_id, title, spots_min, spots_max, age_min, age_max,
		        organiser_id, association, cancelled
		 FROM occasions
		 WHERE period_id = ?
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
	rows.Close()

	dates, err := t.tx.QueryContext(ctx,
		`SELECT d.occasion_id, d.start_at, d.end_at
		 FROM occasion_dates d
		 JOIN occasions o ON o.id = d.occasion_id
		 WHERE o.period_id = ?
		 ORDER BY d.occasion_id, d.start_at`,
		periodID,
	)
	if err != nil {
		return nil, fmt.Errorf("list occasion dates: %w", err)
	}
	defer dates.Close()

	for dates.Next() {
		var id string
		var start, end sql.NullString
		if err := dates.Scan(&id, &start, &end); err != nil {
			return nil, fmt.Errorf("scan occasion date: %w", err)
		}
		var span activitymatch.Timespan
		if span.Start, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("occasion %s date: %w", id, err)
		}
		if span.End, err = parseTime(end); err != nil {
			return nil, fmt.Errorf("occasion %s date: %w", id, err)
		}
		if o, ok := index[id]; ok {
			o.Dates = append(o.Dates, span)
		}
	}
	return occasions, dates.Err()
}

func (t *sqlTx) Attendees(ctx context.Context, periodID string) ([]*period.Attendee, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, name, birth_date, guardian_id, guardian_admin, association, booking_limit
		 FROM attendees
		 WHERE id IN (SELECT attendee_id FROM bookings WHERE period_id = ?)
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
			birth sql.NullString
			limit sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Name, &birth, &a.GuardianID, &a.GuardianAdmin, &a.Association, &limit); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		if a.BirthDate, err = parseTime(birth); err != nil {
			return nil, fmt.Errorf("attendee %s birth date: %w", a.ID, err)
		}
		if limit.Valid {
			v := int(limit.Int64)
			a.Limit = &v
		}
		attendees = append(attendees, &a)
	}
	return attendees, rows.Err()
}

func (t *sqlTx) Bookings(ctx context.Context, periodID string, states ...period.BookingState) ([]*period.Booking, error) {
	query := `SELECT id, period_id, attendee_id, occasion_id, priority, state, created_at, updated_at
		 FROM bookings
		 WHERE period_id = ?`
	args := []any{periodID}
	if len(states) > 0 {
		query += ` AND state IN (` + placeholders(len(states)) + `)`
		for _, s := range states {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY id`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*period.Booking
	for rows.Next() {
		var (
			b                period.Booking
			state            string
			created, updated sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.PeriodID, &b.AttendeeID, &b.OccasionID, &b.Priority, &state,
			&created, &updated); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.State = period.BookingState(state)
		if b.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("booking %s created at: %w", b.ID, err)
		}
		if b.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("booking %s updated at: %w", b.ID, err)
		}
		bookings = append(bookings, &b)
	}
	return bookings, rows.Err()
}

// maxParams stays below SQLITE_MAX_VARIABLE_NUMBER of older builds.
const maxParams = 900

func (t *sqlTx) SetBookingStates(ctx context.Context, state period.BookingState, ids []string) error {
	now := formatTime(t.now())

	var updated int64
	for start := 0; start < len(ids); start += maxParams {
		chunk := ids[start:min(start+maxParams, len(ids))]

		query := `UPDATE bookings SET state = ?, updated_at = ?
			 WHERE state = 'open' AND id IN (` + placeholders(len(chunk)) + `)`
		args := []any{string(state), now}
		for _, id := range chunk {
			args = append(args, id)
		}

		result, err := t.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update booking states: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		updated += n
	}

	if updated != int64(len(ids)) {
		return fmt.Errorf("%d of %d bookings updated: %w", updated, len(ids), period.ErrConcurrentUpdate)
	}
	return nil
}
