package schedule

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) // Sunday

	bookingA = Booking{
		Start:    time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC),
		Location: "Room 4",
	}
	bookingB = Booking{
		Start:    time.Date(2026, 10, 21, 19, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 10, 21, 21, 0, 0, 0, time.UTC),
		Location: "Room 7",
	}
	bookingC = Booking{
		Start:    time.Date(2026, 10, 20, 17, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 10, 20, 19, 0, 0, 0, time.UTC),
		Location: "Room 2",
	}
)

func newTestReconciler(opts Options) *Reconciler {
	opts.Now = func() time.Time { return testNow }
	opts.Location = time.UTC
	return NewReconciler(opts)
}

func scheduleLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "📅") {
			out = append(out, line)
		}
	}
	return out
}

func TestBookingIdentity(t *testing.T) {
	a := Entry{Booking: bookingA, Notified: false}
	b := Entry{Booking: bookingA, Notified: true}
	assert.Equal(t, a.Key(), b.Key())

	moved := bookingA
	moved.End = moved.End.Add(time.Hour)
	assert.NotEqual(t, bookingA.Key(), moved.Key())

	// Same instant in another zone is the same booking.
	shifted := bookingA
	shifted.Start = bookingA.Start.In(time.FixedZone("CET", 3600))
	assert.Equal(t, bookingA.Key(), shifted.Key())
}

func TestReconcileScenario(t *testing.T) {
	r := newTestReconciler(Options{})

	// First cycle: both bookings are new.
	assert.Equal(t, 2, r.Reconcile([]Booking{bookingB, bookingA}))
	notes := r.RenderNotifications()
	assert.Equal(t, 2, strings.Count(notes, "❗"))
	assert.Contains(t, notes, "Monday 18 - 20 Room 4")
	assert.Contains(t, notes, "Wednesday 19 - 21 Room 7")
	for _, e := range r.Entries() {
		assert.True(t, e.Notified)
	}

	first := r.RenderSchedule()
	lines := scheduleLines(first)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Monday")
	assert.Contains(t, lines[0], "18 - 20")
	assert.Contains(t, lines[0], "Room 4")
	assert.Contains(t, lines[1], "Wednesday")

	// Second cycle: identical feed.
	assert.Equal(t, 0, r.Reconcile([]Booking{bookingA, bookingB}))
	assert.Equal(t, "", r.RenderNotifications())
	assert.Equal(t, first, r.RenderSchedule())

	// Third cycle: C is added.
	assert.Equal(t, 1, r.Reconcile([]Booking{bookingA, bookingB, bookingC}))
	notes = r.RenderNotifications()
	assert.Equal(t, 1, strings.Count(notes, "❗"))
	assert.Contains(t, notes, "Tuesday 17 - 19 Room 2")

	lines = scheduleLines(r.RenderSchedule())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Monday")
	assert.Contains(t, lines[1], "Tuesday")
	assert.Contains(t, lines[2], "Wednesday")
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := newTestReconciler(Options{})
	input := []Booking{bookingA, bookingB}

	r.Reconcile(input)
	r.RenderNotifications()
	before := r.Entries()

	r.Reconcile(input)
	assert.Equal(t, before, r.Entries())
	r.Reconcile(input)
	assert.Equal(t, before, r.Entries())
}

func TestReconcileDropsMissingBookings(t *testing.T) {
	r := newTestReconciler(Options{})
	r.Reconcile([]Booking{bookingA, bookingB})
	r.RenderNotifications()

	r.Reconcile([]Booking{bookingB})
	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, bookingB.Key(), entries[0].Key())
	assert.True(t, entries[0].Notified)

	// A cancelled booking that comes back is announced again.
	assert.Equal(t, 1, r.Reconcile([]Booking{bookingA, bookingB}))
	notes := r.RenderNotifications()
	assert.Contains(t, notes, "Room 4")
	assert.NotContains(t, notes, "Room 7")
}

func TestReconcileDeduplicates(t *testing.T) {
	r := newTestReconciler(Options{})

	assert.Equal(t, 1, r.Reconcile([]Booking{bookingA, bookingA}))
	assert.Len(t, r.Entries(), 1)
}

func TestReconcileSortsByStart(t *testing.T) {
	r := newTestReconciler(Options{})
	r.Reconcile([]Booking{bookingB, bookingC, bookingA})

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, bookingA.Key(), entries[0].Key())
	assert.Equal(t, bookingC.Key(), entries[1].Key())
	assert.Equal(t, bookingB.Key(), entries[2].Key())
}

func TestRenderNotificationsDrains(t *testing.T) {
	r := newTestReconciler(Options{})
	r.Reconcile([]Booking{bookingA})

	assert.Equal(t, 1, r.Pending())
	assert.NotEmpty(t, r.RenderNotifications())
	assert.Equal(t, 0, r.Pending())
	assert.Empty(t, r.RenderNotifications())
}

func TestRenderScheduleDoesNotNotify(t *testing.T) {
	r := newTestReconciler(Options{})
	r.Reconcile([]Booking{bookingA, bookingB})

	r.RenderSchedule()
	r.RenderUnavailable()
	for _, e := range r.Entries() {
		assert.False(t, e.Notified)
	}
	assert.Equal(t, 2, r.Pending())
}

func TestRenderScheduleLayout(t *testing.T) {
	r := newTestReconciler(Options{})
	r.Reconcile([]Booking{bookingA, {
		Start:    time.Date(2026, 11, 2, 18, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 11, 2, 20, 0, 0, 0, time.UTC),
		Location: "Main Hall",
	}})

	out := r.RenderSchedule()
	assert.True(t, strings.HasPrefix(out, "⭐   REHEARSAL SCHEDULE   ⭐"))
	assert.True(t, strings.HasSuffix(out, "Updated 2026-10-18 12:00:00"))

	lines := scheduleLines(out)
	require.Len(t, lines, 2)
	assert.Equal(t, "📅 Monday   🕓 18 - 20   🏠 Room 4", lines[0])
	assert.Equal(t, "📅 2/11   🕓 18 - 20   🏠 -", lines[1])
}

func TestRenderScheduleEmpty(t *testing.T) {
	r := newTestReconciler(Options{})

	out := r.RenderSchedule()
	assert.Contains(t, out, "No rehearsals booked")
	assert.Empty(t, scheduleLines(out))
}

func TestRenderUnavailableKeepsLastKnownBookings(t *testing.T) {
	r := newTestReconciler(Options{})
	r.Reconcile([]Booking{bookingA})

	out := r.RenderUnavailable()
	assert.Contains(t, out, "Could not fetch the schedule")
	assert.Len(t, scheduleLines(out), 1)
}

func TestSuppressInitialNotifications(t *testing.T) {
	r := newTestReconciler(Options{SuppressInitialNotifications: true})

	r.Reconcile([]Booking{bookingA, bookingB})
	assert.Empty(t, r.RenderNotifications())

	r.Reconcile([]Booking{bookingA, bookingB, bookingC})
	notes := r.RenderNotifications()
	assert.Equal(t, 1, strings.Count(notes, "❗"))
	assert.Contains(t, notes, "Room 2")
}

func TestLocalizedOutput(t *testing.T) {
	locale := DefaultLocale()
	locale.Weekdays = [7]string{"Måndag", "Tisdag", "Onsdag", "Torsdag", "Fredag", "Lördag", "Söndag"}
	locale.RoomLabel = "Rum"
	locale.NewBooking = "Ett nytt rep har lagts till:"
	r := newTestReconciler(Options{Locale: locale})

	r.Reconcile([]Booking{bookingA})
	assert.Equal(t, "❗ Ett nytt rep har lagts till: Måndag 18 - 20 Rum 4", r.RenderNotifications())
}
