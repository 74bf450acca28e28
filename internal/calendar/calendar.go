// Package calendar holds the date and clock primitives shared by the
// availability templates and the booking ledger.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidWeekday = errors.New("invalid weekday")
	ErrInvalidClock   = errors.New("invalid clock time")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidWindow  = errors.New("window start must be before end")
)

// Weekday numbers days ISO style, Monday=1 through Sunday=7.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// ParseWeekday accepts short or long English names in any case ("mon", "Monday").
func ParseWeekday(s string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := Monday; d <= Sunday; d++ {
		if name == strings.ToLower(weekdayNames[d]) || name == longName(d) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
}

func longName(d Weekday) string {
	// time.Weekday counts from Sunday=0
	return strings.ToLower(time.Weekday(int(d) % 7).String())
}

// WeekdayOf returns the ISO weekday of t.
func WeekdayOf(t time.Time) Weekday {
	wd := t.Weekday()
	if wd == time.Sunday {
		return Sunday
	}
	return Weekday(wd)
}

// Clock is a time of day in minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidClock, hour, minute)
	}
	return Clock(hour*60 + minute), nil
}

// ParseClock parses 24h "H:MM" or "HH:MM". "24:00" is accepted as end of day.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return NewClock(h, m)
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= minutesPerDay
}

// ParseSlot validates an hour-aligned slot label such as "09:00".
func ParseSlot(s string) (Clock, error) {
	c, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	if c.Minute() != 0 || c >= minutesPerDay {
		return 0, fmt.Errorf("%w: slot %q is not hour aligned", ErrInvalidClock, s)
	}
	return c, nil
}

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Day truncates t to its calendar day at midnight UTC, keeping the wall date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// SlotStart places a slot on a calendar day in loc.
func SlotStart(day time.Time, slot string, loc *time.Location) (time.Time, error) {
	c, err := ParseSlot(slot)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc), nil
}

// Window is a half-open interval [Start, End) within one day.
type Window struct {
	Start Clock
	End   Clock
}

func (w Window) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return ErrInvalidClock
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// HourSlots yields every h:00 with h:00 >= Start and h:00+60 <= End.
// A trailing partial hour is dropped.
func (w Window) HourSlots() []Clock {
	first := (int(w.Start) + 59) / 60 * 60
	var out []Clock
	for m := first; m+60 <= int(w.End); m += 60 {
		out = append(out, Clock(m))
	}
	return out
}

// EnumerateSlots returns the deduplicated union of the windows' hour slots,
// ascending, formatted as "HH:00".
func EnumerateSlots(windows []Window) []string {
	seen := make(map[Clock]struct{})
	var clocks []Clock
	for _, w := range windows {
		for _, c := range w.HourSlots() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			clocks = append(clocks, c)
		}
	}
	sort.Slice(clocks, func(i, j int) bool { return clocks[i] < clocks[j] })

	out := make([]string, len(clocks))
	for i, c := range clocks {
		out[i] = c.String()
	}
	return out
}
