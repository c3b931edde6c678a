// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package period

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Snapshot is the JSON document form of the period data.
type Snapshot struct {
	Periods   []*Period   `json:"periods"`
	Occasions []*Occasion `json:"occasions"`
	Attendees []*Attendee `json:"attendees"`
	Bookings  []*Booking  `json:"bookings"`
}

func LoadSnapshot(file string) (*Snapshot, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var snap Snapshot

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", file, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", file, err)
	}
	return &snap, nil
}

func WriteJSON(file string, v any) error {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "   ")
	if err := encoder.Encode(v); err != nil {
		return err
	}

	return os.WriteFile(file, buf.Bytes(), 0644)
}

// Validate checks the references between the documents.
func (s *Snapshot) Validate() error {
	periods := make(map[string]bool)
	for _, p := range s.Periods {
		if periods[p.ID] {
			return fmt.Errorf("period %s defined twice", p.ID)
		}
		periods[p.ID] = true
	}

	occasions := make(map[string]string)
	for _, o := range s.Occasions {
		if _, ok := occasions[o.ID]; ok {
			return fmt.Errorf("occasion %s defined twice", o.ID)
		}
		if !periods[o.PeriodID] {
			return fmt.Errorf("occasion %s: unknown period %s", o.ID, o.PeriodID)
		}
		occasions[o.ID] = o.PeriodID
	}

	attendees := make(map[string]bool)
	for _, a := range s.Attendees {
		if attendees[a.ID] {
			return fmt.Errorf("attendee %s defined twice", a.ID)
		}
		attendees[a.ID] = true
	}

	bookings := make(map[string]bool)
	for _, b := range s.Bookings {
		if bookings[b.ID] {
			return fmt.Errorf("booking %s defined twice", b.ID)
		}
		bookings[b.ID] = true
		if !b.State.Valid() {
			return fmt.Errorf("booking %s: unknown state %q", b.ID, b.State)
		}
		if !attendees[b.AttendeeID] {
			return fmt.Errorf("booking %s: unknown attendee %s", b.ID, b.AttendeeID)
		}
		if p, ok := occasions[b.OccasionID]; !ok || p != b.PeriodID {
			return fmt.Errorf("booking %s: occasion %s is not in period %s", b.ID, b.OccasionID, b.PeriodID)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Periods:   make([]*Period, len(s.Periods)),
		Occasions: make([]*Occasion, len(s.Occasions)),
		Attendees: make([]*Attendee, len(s.Attendees)),
		Bookings:  make([]*Booking, len(s.Bookings)),
	}
	for i, p := range s.Periods {
		cp := *p
		c.Periods[i] = &cp
	}
	for i, o := range s.Occasions {
		co := *o
		co.Dates = append(co.Dates[:0:0], o.Dates...)
		c.Occasions[i] = &co
	}
	for i, a := range s.Attendees {
		ca := *a
		if a.Limit != nil {
			limit := *a.Limit
			ca.Limit = &limit
		}
		c.Attendees[i] = &ca
	}
	for i, b := range s.Bookings {
		cb := *b
		c.Bookings[i] = &cb
	}
	return c
}

// Export reads one period with its occasions, attendees and bookings.
func Export(ctx context.Context, tx Tx, periodID string) (*Snapshot, error) {
	p, err := tx.Period(ctx, periodID)
	if err != nil {
		return nil, err
	}
	occasions, err := tx.Occasions(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load occasions: %w", err)
	}
	attendees, err := tx.Attendees(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load attendees: %w", err)
	}
	bookings, err := tx.Bookings(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	snap := &Snapshot{
		Periods:   []*Period{p},
		Occasions: occasions,
		Attendees: attendees,
		Bookings:  bookings,
	}
	return snap.Clone(), nil
}
