// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package period

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps a snapshot in memory. Transactions work on a copy that
// replaces the snapshot on commit, one transaction at a time.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
	now  func() time.Time
}

func NewMemoryStore(snap *Snapshot) *MemoryStore {
	return &MemoryStore{
		snap: snap.Clone(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot returns a copy of the committed data.
func (s *MemoryStore) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{snap: s.snap.Clone(), now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.snap = tx.snap
	return nil
}

type memoryTx struct {
	snap *Snapshot
	now  func() time.Time
}

// LockPeriod needs no lock of its own: InTx already runs one transaction at
// a time.
func (tx *memoryTx) LockPeriod(ctx context.Context, periodID string) (*Period, error) {
	return tx.Period(ctx, periodID)
}

func (tx *memoryTx) Period(ctx context.Context, periodID string) (*Period, error) {
	for _, p := range tx.snap.Periods {
		if p.ID == periodID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("period %s: %w", periodID, ErrPeriodNotFound)
}

func (tx *memoryTx) Occasions(ctx context.Context, periodID string) ([]*Occasion, error) {
	var occasions []*Occasion
	for _, o := range tx.snap.Occasions {
		if o.PeriodID == periodID {
			occasions = append(occasions, o)
		}
	}
	return occasions, nil
}

func (tx *memoryTx) Attendees(ctx context.Context, periodID string) ([]*Attendee, error) {
	booked := make(map[string]bool)
	for _, b := range tx.snap.Bookings {
		if b.PeriodID == periodID {
			booked[b.AttendeeID] = true
		}
	}
	var attendees []*Attendee
	for _, a := range tx.snap.Attendees {
		if booked[a.ID] {
			attendees = append(attendees, a)
		}
	}
	return attendees, nil
}

func (tx *memoryTx) Bookings(ctx context.Context, periodID string, states ...BookingState) ([]*Booking, error) {
	var bookings []*Booking
	for _, b := range tx.snap.Bookings {
		if b.PeriodID != periodID {
			continue
		}
		if len(states) > 0 && !slices.Contains(states, b.State) {
			continue
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func (tx *memoryTx) SetBookingStates(ctx context.Context, state BookingState, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	now := tx.now()
	n := 0
	for _, b := range tx.snap.Bookings {
		if want[b.ID] && b.State == StateOpen {
			b.State = state
			b.UpdatedAt = now
			n++
		}
	}
	if n != len(want) {
		return fmt.Errorf("%d of %d bookings updated: %w", n, len(want), ErrConcurrentUpdate)
	}
	return nil
}
