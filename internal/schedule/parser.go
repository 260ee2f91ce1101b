package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"
)

// Feed formats understood by Parser.
const (
	FormatJSON     = "json"
	FormatICal     = "ical"
	FormatEmbedded = "embedded"
)

var (
	ErrEmptyFeed     = errors.New("empty feed")
	ErrUnknownFormat = errors.New("feed matches no supported format")
	errNoEvents      = fmt.Errorf("document has no events array: %w", ErrUnknownFormat)
)

// ParseError reports feed content that could not be turned into bookings.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("parse feed: %v", e.Err)
	}
	return fmt.Sprintf("parse %s feed: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	whoKeyRe   = regexp.MustCompile(`"who"\s*:\s*`)
	locationRe = scalarField("location")
	startRe    = scalarField("start_dt")
	endRe      = scalarField("end_dt")
)

func scalarField(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + key + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Parser extracts the tracked performer's bookings from raw feed content.
type Parser struct {
	performer string
	marker    *regexp.Regexp
	logger    *zerolog.Logger
}

// NewParser returns a parser for bookings whose "who" matches performer,
// ignoring case.
func NewParser(performer string, logger *zerolog.Logger) *Parser {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Parser{
		performer: performer,
		marker:    regexp.MustCompile(`(?i)"who"\s*:\s*"` + regexp.QuoteMeta(performer) + `"`),
		logger:    logger,
	}
}

// Parse detects the feed shape and returns the matching bookings sorted by
// start. Records with missing or invalid fields are skipped. A body that
// starts with '{' is a JSON document and must decode as one; only other
// bodies are scanned for embedded records.
func (p *Parser) Parse(raw []byte) ([]Booking, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return nil, &ParseError{Err: ErrEmptyFeed}
	}

	if bytes.HasPrefix(body, []byte("BEGIN:VCALENDAR")) {
		bookings, err := p.parseICal(body)
		if err != nil {
			return nil, &ParseError{Format: FormatICal, Err: err}
		}
		return bookings, nil
	}

	if body[0] == '{' {
		bookings, err := p.parseJSON(body)
		if err != nil {
			return nil, &ParseError{Format: FormatJSON, Err: err}
		}
		return bookings, nil
	}

	bookings, err := p.parseEmbedded(body)
	if err != nil {
		return nil, &ParseError{Format: FormatEmbedded, Err: err}
	}
	return bookings, nil
}

type feedDocument struct {
	Events json.RawMessage `json:"events"`
}

type feedEvent struct {
	Who      *string `json:"who"`
	StartDT  string  `json:"start_dt"`
	EndDT    string  `json:"end_dt"`
	Location *string `json:"location"`
}

func (p *Parser) parseJSON(body []byte) ([]Booking, error) {
	var doc feedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if len(doc.Events) == 0 || bytes.Equal(doc.Events, []byte("null")) {
		return nil, errNoEvents
	}

	var items []json.RawMessage
	if err := json.Unmarshal(doc.Events, &items); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}

	bookings := make([]Booking, 0)
	skipped := 0
	for _, item := range items {
		var ev feedEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			skipped++
			continue
		}
		if ev.Who == nil || !strings.EqualFold(*ev.Who, p.performer) {
			continue
		}
		if ev.Location == nil {
			skipped++
			continue
		}
		b, err := newBooking(ev.StartDT, ev.EndDT, *ev.Location)
		if err != nil {
			skipped++
			p.logger.Debug().Err(err).Msg("skipping malformed event")
			continue
		}
		bookings = append(bookings, b)
	}

	p.logParsed(FormatJSON, len(items), len(bookings), skipped)
	sortBookings(bookings)
	return bookings, nil
}

func (p *Parser) parseICal(body []byte) ([]Booking, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := cal.Events()
	bookings := make([]Booking, 0)
	skipped := 0
	for _, ev := range events {
		summary := ev.GetProperty(ical.ComponentPropertySummary)
		if summary == nil || !strings.EqualFold(summary.Value, p.performer) {
			continue
		}
		start, err := ev.GetStartAt()
		if err != nil {
			skipped++
			continue
		}
		end, err := ev.GetEndAt()
		if err != nil {
			skipped++
			continue
		}
		location := ""
		if lp := ev.GetProperty(ical.ComponentPropertyLocation); lp != nil {
			location = lp.Value
		}
		b := Booking{Start: start.UTC(), End: end.UTC(), Location: location}
		if !b.Valid() {
			skipped++
			continue
		}
		bookings = append(bookings, b)
	}

	p.logParsed(FormatICal, len(events), len(bookings), skipped)
	sortBookings(bookings)
	return bookings, nil
}

// parseEmbedded scans text for the performer's "who" marker and reads the
// location/start_dt/end_dt fields of the object holding it, in any key
// order. When that object never closes the record runs up to the next
// "who" key.
func (p *Parser) parseEmbedded(body []byte) ([]Booking, error) {
	if !bytes.Contains(body, []byte(`"events"`)) && !whoKeyRe.Match(body) {
		return nil, ErrUnknownFormat
	}

	bookings := make([]Booking, 0)
	matches := p.marker.FindAllIndex(body, -1)
	starts := make([]int, len(matches))
	for i, m := range matches {
		starts[i] = m[0]
	}
	spans := enclosingObjects(body, starts)

	skipped := 0
	for i, m := range matches {
		var record []byte
		if spans[i].closed {
			record = body[spans[i].start:spans[i].end]
		} else {
			record = body[m[1]:]
			if next := whoKeyRe.FindIndex(record); next != nil {
				record = record[:next[0]]
			}
		}

		location, okLoc := findScalar(locationRe, record)
		start, okStart := findScalar(startRe, record)
		end, okEnd := findScalar(endRe, record)
		if !okLoc || !okStart || !okEnd {
			skipped++
			continue
		}

		b, err := newBooking(start, end, location)
		if err != nil {
			skipped++
			p.logger.Debug().Err(err).Msg("skipping malformed record")
			continue
		}
		bookings = append(bookings, b)
	}

	p.logParsed(FormatEmbedded, len(matches), len(bookings), skipped)
	sortBookings(bookings)
	return bookings, nil
}

type objectSpan struct {
	start, end int
	closed     bool
}

// enclosingObjects returns, for each ascending offset in at, the bounds of
// the innermost {...} around it. Braces inside double-quoted strings are
// ignored.
func enclosingObjects(body []byte, at []int) []objectSpan {
	spans := make([]objectSpan, len(at))
	waiting := make(map[int][]int)
	var open []int
	inString, escaped := false, false
	next := 0
	for i := 0; i < len(body); i++ {
		for next < len(at) && at[next] == i {
			if len(open) > 0 {
				top := open[len(open)-1]
				spans[next].start = top
				waiting[top] = append(waiting[top], next)
			}
			next++
		}

		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				continue
			}
			top := open[len(open)-1]
			open = open[:len(open)-1]
			for _, k := range waiting[top] {
				spans[k].end = i + 1
				spans[k].closed = true
			}
			delete(waiting, top)
		}
	}
	return spans
}

func findScalar(re *regexp.Regexp, record []byte) (string, bool) {
	m := re.FindSubmatch(record)
	if m == nil {
		return "", false
	}
	var out string
	if err := json.Unmarshal(append(append([]byte{'"'}, m[1]...), '"'), &out); err != nil {
		return "", false
	}
	return out, true
}

func newBooking(start, end, location string) (Booking, error) {
	s, err := parseTimestamp(start)
	if err != nil {
		return Booking{}, err
	}
	e, err := parseTimestamp(end)
	if err != nil {
		return Booking{}, err
	}
	b := Booking{Start: s, End: e, Location: location}
	if !b.Valid() {
		return Booking{}, fmt.Errorf("booking ends before it starts: %s - %s", start, end)
	}
	return b, nil
}

// parseTimestamp reads an ISO-8601 timestamp. Values without an offset are UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func (p *Parser) logParsed(format string, records, bookings, skipped int) {
	p.logger.Debug().
		Str("format", format).
		Int("records", records).
		Int("bookings", bookings).
		Int("skipped", skipped).
		Msg("feed parsed")
}
