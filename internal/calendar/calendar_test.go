package calendar

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func TestEnumerateSlots_WholeHours(t *testing.T) {
	got := EnumerateSlots([]Window{{Start: mustClock(t, "09:00"), End: mustClock(t, "12:00")}})
	want := []string{"09:00", "10:00", "11:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEnumerateSlots_FullDay(t *testing.T) {
	got := EnumerateSlots([]Window{{Start: mustClock(t, "9:00"), End: mustClock(t, "17:00")}})
	if len(got) != 8 || got[0] != "09:00" || got[7] != "16:00" {
		t.Fatalf("unexpected slots %v", got)
	}
}

func TestEnumerateSlots_PartialHoursDropped(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       []string
	}{
		{"trailing half hour", "09:00", "11:30", []string{"09:00", "10:00"}},
		{"leading half hour", "09:30", "12:00", []string{"10:00", "11:00"}},
		{"shorter than an hour", "09:00", "09:30", nil},
		{"late start and early end", "09:15", "10:45", nil},
		{"end of day", "22:00", "24:00", []string{"22:00", "23:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnumerateSlots([]Window{{Start: mustClock(t, tt.start), End: mustClock(t, tt.end)}})
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEnumerateSlots_OverlappingWindowsDeduplicated(t *testing.T) {
	got := EnumerateSlots([]Window{
		{Start: mustClock(t, "13:00"), End: mustClock(t, "16:00")},
		{Start: mustClock(t, "09:00"), End: mustClock(t, "12:00")},
		{Start: mustClock(t, "10:00"), End: mustClock(t, "14:00")},
	})
	want := []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWindowValidate(t *testing.T) {
	if err := (Window{Start: 600, End: 540}).Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
	if err := (Window{Start: 540, End: 540}).Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow for empty window, got %v", err)
	}
	if err := (Window{Start: 540, End: 600}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseClock(t *testing.T) {
	valid := map[string]Clock{"09:00": 540, "9:30": 570, "00:00": 0, "24:00": 1440, "23:59": 1439}
	for in, want := range valid {
		got, err := ParseClock(in)
		if err != nil {
			t.Errorf("ParseClock(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseClock(%q) = %d, want %d", in, got, want)
		}
	}

	for _, in := range []string{"", "9", "9:0", "25:00", "24:30", "12:60", "ab:cd", "09:00pm", "09:+0", "+9:00", "-1:00", "9:-5"} {
		if _, err := ParseClock(in); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("ParseClock(%q): expected ErrInvalidClock, got %v", in, err)
		}
	}
}

func TestParseSlot(t *testing.T) {
	if _, err := ParseSlot("10:00"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c, err := ParseSlot("9:00"); err != nil || c.String() != "09:00" {
		t.Fatalf("ParseSlot(9:00) = %v, %v; want 09:00", c, err)
	}
	for _, in := range []string{"10:30", "24:00"} {
		if _, err := ParseSlot(in); err == nil {
			t.Errorf("ParseSlot(%q): expected error", in)
		}
	}
}

func TestWeekdayOf(t *testing.T) {
	// 2024-06-10 was a Monday
	mon, _ := ParseDate("2024-06-10")
	if got := WeekdayOf(mon); got != Monday {
		t.Errorf("expected Monday, got %s", got)
	}
	sun := mon.AddDate(0, 0, 6)
	if got := WeekdayOf(sun); got != Sunday {
		t.Errorf("expected Sunday, got %s", got)
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]Weekday{"mon": Monday, "Monday": Monday, "SUN": Sunday, "thursday": Thursday} {
		got, err := ParseWeekday(in)
		if err != nil || got != want {
			t.Errorf("ParseWeekday(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseWeekday("someday"); !errors.Is(err, ErrInvalidWeekday) {
		t.Errorf("expected ErrInvalidWeekday, got %v", err)
	}
}

func TestSlotStart(t *testing.T) {
	day, _ := ParseDate("2024-06-10")
	got, err := SlotStart(day, "14:00", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}
