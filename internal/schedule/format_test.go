package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatLocation(t *testing.T) {
	f := NewFormatter(DefaultLocale(), nil)

	tests := []struct {
		input    string
		expected string
	}{
		{"Room 12B", "Room 12"},
		{"Main Hall", "-"},
		{"", "-"},
		{"Rum 4", "Room 4"},
		{"7", "Room 7"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, f.FormatLocation(tt.input), "input: %s", tt.input)
	}
}

func TestFormatLocationUsesLocaleLabel(t *testing.T) {
	locale := DefaultLocale()
	locale.RoomLabel = "Rum"
	f := NewFormatter(locale, nil)

	assert.Equal(t, "Rum 3", f.FormatLocation("Replokal 3"))
}

func TestDayReference(t *testing.T) {
	f := NewFormatter(DefaultLocale(), time.UTC)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) // Sunday

	tests := []struct {
		name     string
		start    time.Time
		expected string
	}{
		{"tomorrow", time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC), "Monday"},
		{"later this week", time.Date(2026, 10, 21, 19, 0, 0, 0, time.UTC), "Wednesday"},
		{"just under a week", now.Add(7*24*time.Hour - time.Second), "Sunday"},
		{"exactly one week", now.Add(7 * 24 * time.Hour), "25/10"},
		{"far ahead", time.Date(2026, 11, 3, 18, 0, 0, 0, time.UTC), "3/11"},
		{"already started", now.Add(-time.Hour), "Sunday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.DayReference(tt.start, now))
		})
	}
}

func TestDayReferenceUsesDisplayTimezone(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	f := NewFormatter(DefaultLocale(), loc)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	// 23:30 UTC Monday is 00:30 Tuesday in the display zone.
	start := time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "Tuesday", f.DayReference(start, now))
}

func TestHourRangeTruncatesMinutes(t *testing.T) {
	f := NewFormatter(DefaultLocale(), time.UTC)
	b := Booking{
		Start: time.Date(2026, 10, 19, 18, 45, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 19, 20, 15, 0, 0, time.UTC),
	}

	assert.Equal(t, "18 - 20", f.HourRange(b))
}

func TestLocaleWeekday(t *testing.T) {
	locale := DefaultLocale()
	assert.Equal(t, "Monday", locale.Weekday(time.Monday))
	assert.Equal(t, "Sunday", locale.Weekday(time.Sunday))
}

func TestLocaleDefaultsFillGaps(t *testing.T) {
	locale := Locale{Weekdays: [7]string{"Måndag"}}
	f := NewFormatter(locale, nil)

	assert.Equal(t, "Måndag", f.locale.Weekday(time.Monday))
	assert.Equal(t, "Tuesday", f.locale.Weekday(time.Tuesday))
	assert.Equal(t, "Room", f.locale.RoomLabel)
}
