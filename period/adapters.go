// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package period

import (
	"time"

	"github.com/someonegg/activitymatch"
)

type bookingAdapter struct {
	*Booking
}

func (b bookingAdapter) ID() string           { return b.Booking.ID }
func (b bookingAdapter) AttendeeID() string   { return b.Booking.AttendeeID }
func (b bookingAdapter) OccasionID() string   { return b.Booking.OccasionID }
func (b bookingAdapter) Priority() int        { return b.Booking.Priority }
func (b bookingAdapter) CreatedAt() time.Time { return b.Booking.CreatedAt }

// occasionAdapter exposes the seats left once the bookings accepted in
// earlier runs are taken off.
type occasionAdapter struct {
	*Occasion
	accepted int
	bookings []string
}

func (o *occasionAdapter) ID() string { return o.Occasion.ID }

func (o *occasionAdapter) SpotsMin() int { return max(0, o.Occasion.SpotsMin-o.accepted) }

func (o *occasionAdapter) SpotsMax() int { return max(0, o.Occasion.SpotsMax-o.accepted) }

func (o *occasionAdapter) BookingIDs() []string { return o.bookings }

func (o *occasionAdapter) Timespans() []activitymatch.Timespan { return o.Occasion.Dates }

var (
	_ activitymatch.Timestamped = bookingAdapter{}
	_ activitymatch.Scheduled   = (*occasionAdapter)(nil)
)
