package markethours

import (
	"testing"
	"time"
)

func kstTime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, KST)
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"weekday mid-session", kstTime(2026, time.March, 4, 11, 0), true},
		{"weekday at open", kstTime(2026, time.March, 4, 9, 0), true},
		{"weekday before open", kstTime(2026, time.March, 4, 8, 59), false},
		{"weekday at close", kstTime(2026, time.March, 4, 15, 30), false},
		{"weekday just before close", kstTime(2026, time.March, 4, 15, 29), true},
		{"saturday", kstTime(2026, time.March, 7, 11, 0), false},
		{"sunday", kstTime(2026, time.March, 8, 11, 0), false},
		{"seollal holiday", kstTime(2026, time.February, 17, 11, 0), false},
		{"chuseok holiday", kstTime(2026, time.September, 25, 11, 0), false},
	}
	for _, tt := range tests {
		if got := IsMarketOpen(tt.t); got != tt.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsMarketOpenConvertsTimezone(t *testing.T) {
	// 02:00 UTC Wednesday is 11:00 KST, inside the session.
	utc := time.Date(2026, time.March, 4, 2, 0, 0, 0, time.UTC)
	if !IsMarketOpen(utc) {
		t.Error("IsMarketOpen(02:00 UTC weekday) = false, want true")
	}
}

func TestNextOpen(t *testing.T) {
	// Friday after close: next open is Monday 09:00.
	fridayEvening := kstTime(2026, time.March, 6, 18, 0)
	next := NextOpen(fridayEvening)
	want := kstTime(2026, time.March, 9, 9, 0)
	if !next.Equal(want) {
		t.Errorf("NextOpen(friday evening) = %v, want %v", next, want)
	}

	// Early morning on a trading day: today's open.
	earlyMorning := kstTime(2026, time.March, 4, 7, 0)
	next = NextOpen(earlyMorning)
	want = kstTime(2026, time.March, 4, 9, 0)
	if !next.Equal(want) {
		t.Errorf("NextOpen(early morning) = %v, want %v", next, want)
	}

	// Day before the Seollal block (Feb 16-18): skips to Feb 19.
	beforeSeollal := kstTime(2026, time.February, 13, 18, 0) // Friday
	next = NextOpen(beforeSeollal)
	want = kstTime(2026, time.February, 19, 9, 0)
	if !next.Equal(want) {
		t.Errorf("NextOpen(before seollal) = %v, want %v", next, want)
	}
}

func TestIsTradingDay(t *testing.T) {
	if IsTradingDay(kstTime(2026, time.December, 25, 11, 0)) {
		t.Error("christmas counted as trading day")
	}
	if !IsTradingDay(kstTime(2026, time.March, 4, 11, 0)) {
		t.Error("regular wednesday not counted as trading day")
	}
}
