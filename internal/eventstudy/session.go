package eventstudy

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata" // session locations must resolve on hosts without zoneinfo
)

// Session is a daily trading session in a given location. Open and Close
// are offsets from local midnight; both bounds are inclusive.
type Session struct {
	Location *time.Location
	Open     time.Duration
	Close    time.Duration
}

// DefaultSession returns US regular trading hours, 09:30-16:00 New York time
func DefaultSession() *Session {
	s, err := NewSession("America/New_York", "09:30", "16:00")
	if err != nil {
		// tzdata is embedded, the location always resolves
		panic(err)
	}
	return s
}

// NewSession builds a session from an IANA location name and HH:MM bounds
func NewSession(location, open, close string) (*Session, error) {
	loc, err := time.LoadLocation(location)
	if err != nil {
		return nil, &ValidationError{Field: "session.location", Message: err.Error(), Value: location}
	}
	o, err := ParseClock(open)
	if err != nil {
		return nil, &ValidationError{Field: "session.open", Message: err.Error(), Value: open}
	}
	c, err := ParseClock(close)
	if err != nil {
		return nil, &ValidationError{Field: "session.close", Message: err.Error(), Value: close}
	}
	s := &Session{Location: loc, Open: o, Close: c}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseClock parses an HH:MM wall-clock time into an offset from midnight
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Validate checks session bounds
func (s *Session) Validate() error {
	if s.Location == nil {
		return &ValidationError{Field: "session.location", Message: "is required"}
	}
	if s.Open < 0 || s.Close > 24*time.Hour || s.Close <= s.Open {
		return &ValidationError{Field: "session", Message: "close must be after open within one day", Value: fmt.Sprintf("%s-%s", s.Open, s.Close)}
	}
	return nil
}

// Contains reports whether t is inside the session on its local day
func (s *Session) Contains(t time.Time) bool {
	offset := ClockOf(t, s.Location)
	return offset >= s.Open && offset <= s.Close
}

// SameDay reports whether a and b fall on the same local date
func (s *Session) SameDay(a, b time.Time) bool {
	return Day(a, s.Location).Equal(Day(b, s.Location))
}

// Day returns local midnight of t's date in loc
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// ClockOf returns the wall-clock offset of t from local midnight
func ClockOf(t time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return time.Duration(l.Hour())*time.Hour + time.Duration(l.Minute())*time.Minute +
		time.Duration(l.Second())*time.Second + time.Duration(l.Nanosecond())
}

// TradingDays returns the distinct local dates present in ts, ascending
func TradingDays(ts []time.Time, loc *time.Location) []time.Time {
	seen := make(map[time.Time]struct{})
	var days []time.Time
	for _, t := range ts {
		d := Day(t, loc)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// calendarDaysBetween counts whole calendar days from a to b (both local midnights)
func calendarDaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
