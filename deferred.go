// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activitymatch

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

type deferredMatcher struct {
	cfg Config
	log logrus.FieldLogger
}

// DeferredAcceptanceMatcher returns the capacity-constrained Gale-Shapley
// matcher. Bookings propose in their attendee's priority order, occasions
// hold the best ranked bookings up to SpotsMax, and occasions that end below
// SpotsMin release everything they hold.
//
// Every booking proposes at most once; a displaced booking is denied for good.
// A wish blocked by a held booking waits until that booking is displaced.
func DeferredAcceptanceMatcher(cfg Config) Matcher {
	m := deferredMatcher{cfg: cfg, log: cfg.Log}
	if m.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		m.log = l
	}
	return m
}

// DeferredAcceptance runs the matcher without attendee limits.
func DeferredAcceptance(bookings []MatchableBooking, occasions []MatchableOccasion, ranking Ranking) (Decisions, error) {
	res, err := DeferredAcceptanceMatcher(Config{}).Match(bookings, occasions, ranking)
	if err != nil {
		return nil, err
	}
	return res.Decisions, nil
}

type bookingAgent struct {
	booking  MatchableBooking
	attendee *attendeeAgent
	occasion *occasionAgent
	held     bool
	proposed bool
}

type attendeeAgent struct {
	id     string
	wishes []*bookingAgent
	held   []*bookingAgent
	limit  int // < 0 is unlimited
	queued bool
}

func (a *attendeeAgent) full() bool {
	return a.limit >= 0 && len(a.held) >= a.limit
}

// nextWish returns the most preferred wish that has not proposed yet and
// that nothing held blocks, nil when the attendee has to wait.
func (a *attendeeAgent) nextWish(gap time.Duration) *bookingAgent {
	if a.full() {
		return nil
	}
	for _, w := range a.wishes {
		if !w.proposed && a.blocks(w, gap) == "" {
			return w
		}
	}
	return nil
}

// blocks returns why the attendee cannot hold b next to what it holds already.
func (a *attendeeAgent) blocks(b *bookingAgent, gap time.Duration) string {
	for _, h := range a.held {
		if h.occasion == b.occasion {
			return "duplicate"
		}
		for _, x := range h.occasion.spans {
			for _, y := range b.occasion.spans {
				if x.Overlaps(y, gap) {
					return "conflict"
				}
			}
		}
	}
	return ""
}

func (a *attendeeAgent) release(b *bookingAgent) {
	for i, h := range a.held {
		if h == b {
			a.held = append(a.held[:i], a.held[i+1:]...)
			return
		}
	}
}

type occasionAgent struct {
	occasion MatchableOccasion
	spans    []Timespan
	held     []*bookingAgent // best first
	wishes   int
}

// hold seats b and returns the bookings pushed beyond SpotsMax.
func (o *occasionAgent) hold(b *bookingAgent, ranking Ranking) ([]*bookingAgent, error) {
	var err error
	i := sort.Search(len(o.held), func(i int) bool {
		if err != nil {
			return true
		}
		less, e := ranking.Less(o.occasion, b.booking, o.held[i].booking)
		if e != nil {
			err = e
			return true
		}
		return less
	})
	if err != nil {
		return nil, fmt.Errorf("rank booking %s at occasion %s: %w", b.booking.ID(), o.occasion.ID(), err)
	}

	o.held = append(o.held, nil)
	copy(o.held[i+1:], o.held[i:])
	o.held[i] = b
	b.held = true

	spots := o.occasion.SpotsMax()
	if len(o.held) <= spots {
		return nil, nil
	}
	displaced := append([]*bookingAgent(nil), o.held[spots:]...)
	o.held = o.held[:spots]
	for _, d := range displaced {
		d.held = false
	}
	return displaced, nil
}

func (m deferredMatcher) Match(bookings []MatchableBooking, occasions []MatchableOccasion, ranking Ranking) (*Result, error) {
	occs, err := m.occasionAgents(occasions)
	if err != nil {
		return nil, err
	}
	bks, atts, err := m.bookingAgents(bookings, occs)
	if err != nil {
		return nil, err
	}

	gap := time.Duration(m.cfg.MinutesBetween) * time.Minute

	var queue []*attendeeAgent
	enqueue := func(a *attendeeAgent) {
		if !a.queued && a.nextWish(gap) != nil {
			a.queued = true
			queue = append(queue, a)
		}
	}
	for _, id := range sortedKeys(atts, nil) {
		enqueue(atts[id])
	}

	rounds := 0

	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		a.queued = false

		b := a.nextWish(gap)
		if b == nil {
			continue
		}
		b.proposed = true
		rounds++

		a.held = append(a.held, b)
		displaced, err := b.occasion.hold(b, ranking)
		if err != nil {
			return nil, err
		}
		for _, d := range displaced {
			d.attendee.release(d)
			m.log.WithFields(logrus.Fields{
				"booking":  d.booking.ID(),
				"occasion": d.occasion.occasion.ID(),
				"by":       b.booking.ID(),
			}).Debug("booking displaced")
			if d.attendee != a {
				enqueue(d.attendee)
			}
		}
		enqueue(a)
	}

	for _, id := range sortedKeys(bks, func(b *bookingAgent) bool { return !b.proposed }) {
		b := bks[id]
		reason := b.attendee.blocks(b, gap)
		if reason == "" {
			reason = "limit"
		}
		m.log.WithFields(logrus.Fields{
			"booking":  id,
			"attendee": b.attendee.id,
			"reason":   reason,
		}).Debug("wish never proposed")
	}

	res := &Result{Decisions: make(Decisions, len(bks))}

	for _, id := range sortedKeys(occs, nil) {
		o := occs[id]
		if len(o.held) >= o.occasion.SpotsMin() {
			continue
		}
		if o.wishes > 0 {
			res.BelowMinimum = append(res.BelowMinimum, id)
		}
		for _, b := range o.held {
			b.held = false
			b.attendee.release(b)
		}
		if len(o.held) > 0 {
			m.log.WithFields(logrus.Fields{
				"occasion": id,
				"held":     len(o.held),
				"min":      o.occasion.SpotsMin(),
			}).Debug("occasion below minimum")
		}
		o.held = nil
	}

	for id, b := range bks {
		if b.held {
			res.Decisions[id] = Accepted
		} else {
			res.Decisions[id] = Denied
		}
	}

	m.log.WithFields(logrus.Fields{
		"bookings":      len(bks),
		"rounds":        rounds,
		"accepted":      res.Decisions.Count(Accepted),
		"below_minimum": len(res.BelowMinimum),
	}).Debug("deferred acceptance finished")

	return res, nil
}

func (m deferredMatcher) occasionAgents(occasions []MatchableOccasion) (map[string]*occasionAgent, error) {
	if len(occasions) == 0 {
		return nil, ErrNoOccasions
	}

	occs := make(map[string]*occasionAgent, len(occasions))
	for _, o := range occasions {
		id := o.ID()
		if _, ok := occs[id]; ok {
			return nil, fmt.Errorf("occasion %s: %w", id, ErrDuplicateID)
		}
		lo, hi := o.SpotsMin(), o.SpotsMax()
		if lo < 0 || hi < 0 || lo > hi {
			return nil, fmt.Errorf("occasion %s (spots %d..%d): %w", id, lo, hi, ErrInvalidCapacity)
		}
		agent := &occasionAgent{occasion: o}
		if s, ok := o.(Scheduled); ok {
			agent.spans = s.Timespans()
		}
		occs[id] = agent
	}
	return occs, nil
}

func (m deferredMatcher) bookingAgents(bookings []MatchableBooking, occs map[string]*occasionAgent) (
	map[string]*bookingAgent, map[string]*attendeeAgent, error) {

	bks := make(map[string]*bookingAgent, len(bookings))
	atts := make(map[string]*attendeeAgent)

	for _, b := range bookings {
		id := b.ID()
		if _, ok := bks[id]; ok {
			return nil, nil, fmt.Errorf("booking %s: %w", id, ErrDuplicateID)
		}
		occ, ok := occs[b.OccasionID()]
		if !ok {
			return nil, nil, fmt.Errorf("booking %s, occasion %s: %w", id, b.OccasionID(), ErrUnknownOccasion)
		}
		att, ok := atts[b.AttendeeID()]
		if !ok {
			att = &attendeeAgent{id: b.AttendeeID(), limit: m.limitOf(b.AttendeeID())}
			atts[att.id] = att
		}
		agent := &bookingAgent{booking: b, attendee: att, occasion: occ}
		att.wishes = append(att.wishes, agent)
		occ.wishes++
		bks[id] = agent
	}

	for _, occ := range occs {
		for _, id := range occ.occasion.BookingIDs() {
			if b, ok := bks[id]; ok && b.occasion != occ {
				return nil, nil, fmt.Errorf("occasion %s, booking %s: %w", occ.occasion.ID(), id, ErrInconsistentSnapshot)
			}
		}
	}

	for _, att := range atts {
		sort.SliceStable(att.wishes, func(i, j int) bool {
			return wishLess(att.wishes[i].booking, att.wishes[j].booking)
		})
	}

	return bks, atts, nil
}

func (m deferredMatcher) limitOf(attendee string) int {
	if limit, ok := m.cfg.AttendeeLimits[attendee]; ok {
		return limit
	}
	if m.cfg.DefaultLimit > 0 {
		return m.cfg.DefaultLimit
	}
	return -1
}

// wishLess orders an attendee's own bookings.
func wishLess(a, b MatchableBooking) bool {
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority()
	}
	ta, okA := a.(Timestamped)
	tb, okB := b.(Timestamped)
	if okA && okB && !ta.CreatedAt().Equal(tb.CreatedAt()) {
		return ta.CreatedAt().Before(tb.CreatedAt())
	}
	return a.ID() < b.ID()
}

func sortedKeys[V any](m map[string]V, keep func(V) bool) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if keep == nil || keep(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
