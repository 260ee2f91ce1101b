package schedule

import (
	"strings"
	"sync"
	"time"
)

// Options configure a Reconciler.
type Options struct {
	Locale Locale
	// Location is the display timezone for weekdays and hours.
	Location *time.Location
	// SuppressInitialNotifications marks everything seen by the first
	// successful reconcile as already notified.
	SuppressInitialNotifications bool
	// Now overrides the clock.
	Now func() time.Time
}

// Reconciler owns the in-memory schedule state: the current bookings in
// start order and the notified flag of each one, keyed by identity.
// Calls are serialized; RenderNotifications mutates state.
type Reconciler struct {
	mu       sync.Mutex
	bookings []Booking
	notified map[Key]bool
	primed   bool

	suppressInitial bool
	format          *Formatter
	now             func() time.Time
}

// NewReconciler returns a reconciler with empty state.
func NewReconciler(opts Options) *Reconciler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		notified:        make(map[Key]bool),
		suppressInitial: opts.SuppressInitialNotifications,
		format:          NewFormatter(opts.Locale, opts.Location),
		now:             now,
	}
}

// Reconcile replaces the current bookings with parsed. Bookings already
// known keep their notified flag, new ones start un-notified, and bookings
// missing from parsed are dropped. It returns the number of new bookings.
func (r *Reconciler) Reconcile(parsed []Booking) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]Booking, 0, len(parsed))
	notified := make(map[Key]bool, len(parsed))
	added := 0
	for _, b := range parsed {
		k := b.Key()
		if _, dup := notified[k]; dup {
			continue
		}
		prev, known := r.notified[k]
		if !known {
			added++
		}
		notified[k] = prev || (!r.primed && r.suppressInitial)
		next = append(next, b)
	}
	sortBookings(next)

	r.bookings = next
	r.notified = notified
	r.primed = true
	return added
}

// Entries returns a snapshot of the current state in schedule order.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.bookings))
	for _, b := range r.bookings {
		out = append(out, Entry{Booking: b, Notified: r.notified[b.Key()]})
	}
	return out
}

// Pending returns how many bookings have not been announced yet.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, b := range r.bookings {
		if !r.notified[b.Key()] {
			n++
		}
	}
	return n
}

// RenderNotifications returns one line per booking not announced yet and
// marks those bookings notified. A second call returns "".
func (r *Reconciler) RenderNotifications() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	lines := make([]string, 0)
	for _, b := range r.bookings {
		k := b.Key()
		if r.notified[k] {
			continue
		}
		lines = append(lines, "❗ "+r.format.locale.NewBooking+" "+
			r.format.DayReference(b.Start, now)+" "+
			r.format.HourRange(b)+" "+
			r.format.FormatLocation(b.Location))
		r.notified[k] = true
	}
	return strings.Join(lines, "\n")
}

// RenderSchedule renders the full schedule. It does not change state.
func (r *Reconciler) RenderSchedule() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.render("")
}

// RenderUnavailable renders the last known schedule with a note that the
// latest fetch failed.
func (r *Reconciler) RenderUnavailable() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.render("⚠️ " + r.format.locale.Unavailable)
}

func (r *Reconciler) render(note string) string {
	now := r.now()
	locale := r.format.locale

	var sb strings.Builder
	sb.WriteString("⭐   " + locale.Title + "   ⭐\n\n")
	if note != "" {
		sb.WriteString(note + "\n\n")
	}
	if len(r.bookings) == 0 {
		sb.WriteString(locale.NoBookings + "\n")
	}
	for _, b := range r.bookings {
		sb.WriteString("📅 " + r.format.DayReference(b.Start, now) +
			"   🕓 " + r.format.HourRange(b) +
			"   🏠 " + r.format.FormatLocation(b.Location) + "\n")
	}
	sb.WriteString("\n" + locale.Updated + " " + r.format.Timestamp(now))
	return sb.String()
}
