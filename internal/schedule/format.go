package schedule

import (
	"fmt"
	"strings"
	"time"
)

// nearTermWindow is how far ahead a booking is named by weekday instead of date.
const nearTermWindow = 7 * 24 * time.Hour

const noRoom = "-"

// Locale holds the user-facing strings of the rendered output.
type Locale struct {
	// Weekdays are the day names, Monday first.
	Weekdays    [7]string
	RoomLabel   string
	Title       string
	NewBooking  string
	NoBookings  string
	Unavailable string
	Updated     string
}

// DefaultLocale returns English strings.
func DefaultLocale() Locale {
	return Locale{
		Weekdays:    [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
		RoomLabel:   "Room",
		Title:       "REHEARSAL SCHEDULE",
		NewBooking:  "New rehearsal booked:",
		NoBookings:  "No rehearsals booked",
		Unavailable: "Could not fetch the schedule, showing the last known bookings",
		Updated:     "Updated",
	}
}

// withDefaults fills empty fields of l from DefaultLocale.
func (l Locale) withDefaults() Locale {
	def := DefaultLocale()
	for i, name := range l.Weekdays {
		if name == "" {
			l.Weekdays[i] = def.Weekdays[i]
		}
	}
	if l.RoomLabel == "" {
		l.RoomLabel = def.RoomLabel
	}
	if l.Title == "" {
		l.Title = def.Title
	}
	if l.NewBooking == "" {
		l.NewBooking = def.NewBooking
	}
	if l.NoBookings == "" {
		l.NoBookings = def.NoBookings
	}
	if l.Unavailable == "" {
		l.Unavailable = def.Unavailable
	}
	if l.Updated == "" {
		l.Updated = def.Updated
	}
	return l
}

// Weekday returns the localized name of d.
func (l Locale) Weekday(d time.Weekday) string {
	// time.Weekday starts on Sunday, Weekdays on Monday.
	return l.Weekdays[(int(d)+6)%7]
}

// Formatter renders bookings in a display timezone.
type Formatter struct {
	locale   Locale
	location *time.Location
}

// NewFormatter returns a Formatter. A nil location means UTC.
func NewFormatter(locale Locale, location *time.Location) *Formatter {
	if location == nil {
		location = time.UTC
	}
	return &Formatter{locale: locale.withDefaults(), location: location}
}

// DayReference names the day of start relative to now: the weekday when the
// booking starts less than a week from now, otherwise day/month.
func (f *Formatter) DayReference(start, now time.Time) string {
	local := start.In(f.location)
	if start.Sub(now) < nearTermWindow {
		return f.locale.Weekday(local.Weekday())
	}
	return fmt.Sprintf("%d/%d", local.Day(), int(local.Month()))
}

// HourRange renders "start - end" using whole hours only.
func (f *Formatter) HourRange(b Booking) string {
	return fmt.Sprintf("%d - %d", b.Start.In(f.location).Hour(), b.End.In(f.location).Hour())
}

// FormatLocation reduces a free-text location to its room number.
func (f *Formatter) FormatLocation(raw string) string {
	return formatLocation(f.locale.RoomLabel, raw)
}

func formatLocation(label, raw string) string {
	digits := filterDigits(raw)
	if digits == "" {
		return noRoom
	}
	return label + " " + digits
}

func filterDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Timestamp formats the render time shown in the schedule footer.
func (f *Formatter) Timestamp(t time.Time) string {
	return t.In(f.location).Format("2006-01-02 15:04:05")
}
