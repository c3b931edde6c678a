// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitestore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/someonegg/activitymatch/period"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS periods (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL DEFAULT '',
		active          BOOLEAN NOT NULL DEFAULT 0,
		confirmed       BOOLEAN NOT NULL DEFAULT 0,
		booking_limit   INTEGER NOT NULL DEFAULT 0,
		minutes_between INTEGER NOT NULL DEFAULT 0,
		execution_start TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS occasions (
		id           TEXT PRIMARY KEY,
		period_id    TEXT NOT NULL REFERENCES periods(id),
		title        TEXT NOT NULL DEFAULT '',
		spots_min    INTEGER NOT NULL DEFAULT 0,
		spots_max    INTEGER NOT NULL DEFAULT 0,
		age_min      INTEGER NOT NULL DEFAULT 0,
		age_max      INTEGER NOT NULL DEFAULT 0,
		organiser_id TEXT NOT NULL DEFAULT '',
		association  TEXT NOT NULL DEFAULT '',
		cancelled    BOOLEAN NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS occasion_dates (
		occasion_id TEXT NOT NULL REFERENCES occasions(id) ON DELETE CASCADE,
		start_at    TEXT NOT NULL,
		end_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS attendees (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL DEFAULT '',
		birth_date     TEXT,
		guardian_id    TEXT NOT NULL DEFAULT '',
		guardian_admin BOOLEAN NOT NULL DEFAULT 0,
		association    TEXT NOT NULL DEFAULT '',
		booking_limit  INTEGER
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id          TEXT PRIMARY KEY,
		period_id   TEXT NOT NULL REFERENCES periods(id),
		attendee_id TEXT NOT NULL REFERENCES attendees(id),
		occasion_id TEXT NOT NULL REFERENCES occasions(id),
		priority    INTEGER NOT NULL DEFAULT 0,
		state       TEXT NOT NULL DEFAULT 'open'
		            CHECK (state IN ('open', 'accepted', 'denied', 'cancelled', 'blocked')),
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_occasions_period ON occasions(period_id)`,
	`CREATE INDEX IF NOT EXISTS idx_occasion_dates_occasion ON occasion_dates(occasion_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_period_state ON bookings(period_id, state)`,
}

// Migrate creates the schema when it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Import upserts the snapshot in one transaction. Bookings without an id
// get a fresh one.
func (s *Store) Import(ctx context.Context, snap *period.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	exec := func(query string, args ...any) {
		if err != nil {
			return
		}
		_, err = tx.ExecContext(ctx, query, args...)
	}

	for _, p := range snap.Periods {
		exec(`INSERT INTO periods (id, title, active, confirmed, booking_limit, minutes_between, execution_start)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   title = excluded.title, active = excluded.active, confirmed = excluded.confirmed,
			   booking_limit = excluded.booking_limit, minutes_between = excluded.minutes_between,
			   execution_start = excluded.execution_start`,
			p.ID, p.Title, p.Active, p.Confirmed, p.BookingLimit, p.MinutesBetween, formatTime(p.ExecutionStart))
	}
	for _, o := range snap.Occasions {
		exec(`INSERT INTO occasions (id, period_id, title, spots_min, spots_max, age_min, age_max,
			                        organiser_id, association, cancelled)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   period_id = excluded.period_id, title = excluded.title,
			   spots_min = excluded.spots_min, spots_max = excluded.spots_max,
			   age_min = excluded.age_min, age_max = excluded.age_max,
			   organiser_id = excluded.organiser_id, association = excluded.association,
			   cancelled = excluded.cancelled`,
			o.ID, o.PeriodID, o.Title, o.SpotsMin, o.SpotsMax, o.AgeMin, o.AgeMax,
			o.OrganiserID, o.Association, o.Cancelled)
		exec(`DELETE FROM occasion_dates WHERE occasion_id = ?`, o.ID)
		for _, d := range o.Dates {
			exec(`INSERT INTO occasion_dates (occasion_id, start_at, end_at) VALUES (?, ?, ?)`,
				o.ID, formatTime(d.Start), formatTime(d.End))
		}
	}
	for _, a := range snap.Attendees {
		exec(`INSERT INTO attendees (id, name, birth_date, guardian_id, guardian_admin, association, booking_limit)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   name = excluded.name, birth_date = excluded.birth_date,
			   guardian_id = excluded.guardian_id, guardian_admin = excluded.guardian_admin,
			   association = excluded.association, booking_limit = excluded.booking_limit`,
			a.ID, a.Name, formatTime(a.BirthDate), a.GuardianID, a.GuardianAdmin, a.Association, a.Limit)
	}
	now := s.now()
	for _, b := range snap.Bookings {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.State == "" {
			b.State = period.StateOpen
		}
		created, updated := b.CreatedAt, b.UpdatedAt
		if created.IsZero() {
			created = now
		}
		if updated.IsZero() {
			updated = created
		}
		exec(`INSERT INTO bookings (id, period_id, attendee_id, occasion_id, priority, state, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   period_id = excluded.period_id, attendee_id = excluded.attendee_id,
			   occasion_id = excluded.occasion_id, priority = excluded.priority,
			   state = excluded.state, updated_at = excluded.updated_at`,
			b.ID, b.PeriodID, b.AttendeeID, b.OccasionID, b.Priority, string(b.State),
			formatTime(created), formatTime(updated))
	}
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Export reads the period back as a snapshot.
func (s *Store) Export(ctx context.Context, periodID string) (*period.Snapshot, error) {
	var snap *period.Snapshot
	err := s.InTx(ctx, func(ctx context.Context, tx period.Tx) error {
		var err error
		snap, err = period.Export(ctx, tx, periodID)
		return err
	})
	return snap, err
}
