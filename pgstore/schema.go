// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/someonegg/activitymatch/period"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS periods (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL DEFAULT '',
		active          BOOLEAN NOT NULL DEFAULT FALSE,
		confirmed       BOOLEAN NOT NULL DEFAULT FALSE,
		booking_limit   INTEGER NOT NULL DEFAULT 0,
		minutes_between INTEGER NOT NULL DEFAULT 0,
		execution_start TIMESTAMPTZ
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
		cancelled    BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS occasion_dates (
		occasion_id TEXT NOT NULL REFERENCES occasions(id) ON DELETE CASCADE,
		start_at    TIMESTAMPTZ NOT NULL,
		end_at      TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS attendees (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL DEFAULT '',
		birth_date     DATE,
		guardian_id    TEXT NOT NULL DEFAULT '',
		guardian_admin BOOLEAN NOT NULL DEFAULT FALSE,
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
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_occasions_period ON occasions(period_id)`,
	`CREATE INDEX IF NOT EXISTS idx_occasion_dates_occasion ON occasion_dates(occasion_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_period_state ON bookings(period_id, state)`,
}

// Migrate creates the schema when it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Import upserts the snapshot in one transaction. Bookings without an id
// get a fresh one.
func (s *Store) Import(ctx context.Context, snap *period.Snapshot) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	batch := &pgx.Batch{}
	for _, p := range snap.Periods {
		var start any
		if !p.ExecutionStart.IsZero() {
			start = p.ExecutionStart
		}
		batch.Queue(
			`INSERT INTO periods (id, title, active, confirmed, booking_limit, minutes_between, execution_start)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
			   title = EXCLUDED.title, active = EXCLUDED.active, confirmed = EXCLUDED.confirmed,
			   booking_limit = EXCLUDED.booking_limit, minutes_between = EXCLUDED.minutes_between,
			   execution_start = EXCLUDED.execution_start`,
			p.ID, p.Title, p.Active, p.Confirmed, p.BookingLimit, p.MinutesBetween, start)
	}
	for _, o := range snap.Occasions {
		batch.Queue(
			`INSERT INTO occasions (id, period_id, title, spots_min, spots_max, age_min, age_max,
			                        organiser_id, association, cancelled)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET
			   period_id = EXCLUDED.period_id, title = EXCLUDED.title,
			   spots_min = EXCLUDED.spots_min, spots_max = EXCLUDED.spots_max,
			   age_min = EXCLUDED.age_min, age_max = EXCLUDED.age_max,
			   organiser_id = EXCLUDED.organiser_id, association = EXCLUDED.association,
			   cancelled = EXCLUDED.cancelled`,
			o.ID, o.PeriodID, o.Title, o.SpotsMin, o.SpotsMax, o.AgeMin, o.AgeMax,
			o.OrganiserID, o.Association, o.Cancelled)
		batch.Queue(`DELETE FROM occasion_dates WHERE occasion_id = $1`, o.ID)
		for _, d := range o.Dates {
			batch.Queue(`INSERT INTO occasion_dates (occasion_id, start_at, end_at) VALUES ($1, $2, $3)`,
				o.ID, d.Start, d.End)
		}
	}
	for _, a := range snap.Attendees {
		var birth any
		if !a.BirthDate.IsZero() {
			birth = a.BirthDate
		}
		batch.Queue(
			`INSERT INTO attendees (id, name, birth_date, guardian_id, guardian_admin, association, booking_limit)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name, birth_date = EXCLUDED.birth_date,
			   guardian_id = EXCLUDED.guardian_id, guardian_admin = EXCLUDED.guardian_admin,
			   association = EXCLUDED.association, booking_limit = EXCLUDED.booking_limit`,
			a.ID, a.Name, birth, a.GuardianID, a.GuardianAdmin, a.Association, a.Limit)
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
		batch.Queue(
			`INSERT INTO bookings (id, period_id, attendee_id, occasion_id, priority, state, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
			   period_id = EXCLUDED.period_id, attendee_id = EXCLUDED.attendee_id,
			   occasion_id = EXCLUDED.occasion_id, priority = EXCLUDED.priority,
			   state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
			b.ID, b.PeriodID, b.AttendeeID, b.OccasionID, b.Priority, string(b.State), created, updated)
	}

	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
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
