package schedule

import (
	"sort"
	"time"
)

// Booking is one calendar occurrence for the tracked performer.
// Start and End are stored in UTC.
type Booking struct {
	Start    time.Time
	End      time.Time
	Location string
}

// Key identifies a booking. Two bookings are the same iff their keys match.
type Key struct {
	Start    int64
	End      int64
	Location string
}

// Key returns the identity of b.
func (b Booking) Key() Key {
	return Key{
		Start:    b.Start.UnixNano(),
		End:      b.End.UnixNano(),
		Location: b.Location,
	}
}

// Valid reports whether the booking has both timestamps and ends after it starts.
func (b Booking) Valid() bool {
	return !b.Start.IsZero() && !b.End.IsZero() && b.End.After(b.Start)
}

// Entry is a booking together with its notification state.
type Entry struct {
	Booking
	Notified bool
}

func sortBookings(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.Location < b.Location
	})
}
