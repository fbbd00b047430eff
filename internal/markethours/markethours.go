// Package markethours tracks the KRX regular trading session. The
// gateway exposes the state through health and metrics; refresh timers
// run regardless of session state.
package markethours

import "time"

// KST is the Korea Standard Time location (UTC+9).
var KST = time.FixedZone("KST", 9*3600)

// KRX regular session in KST
const (
	OpenHour    = 9
	OpenMinute  = 0
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true if t falls within KRX regular trading hours
// (9:00 AM – 3:30 PM KST, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	kst := t.In(KST)
	wd := kst.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if IsHoliday(kst) {
		return false
	}
	hm := kst.Hour()*60 + kst.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(KST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	kst := t.In(KST)
	return IsWeekday(kst) && !IsHoliday(kst)
}

// NextOpen returns the next market open time (9:00 AM KST on the next
// trading day). If t is before today's open on a trading day, returns
// today's open.
func NextOpen(t time.Time) time.Time {
	kst := t.In(KST)

	todayOpen := time.Date(kst.Year(), kst.Month(), kst.Day(), OpenHour, OpenMinute, 0, 0, KST)
	if kst.Before(todayOpen) && IsTradingDay(kst) {
		return todayOpen
	}

	d := kst.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, KST)
		}
		d = d.AddDate(0, 0, 1)
	}
	// Fallback: next day
	return time.Date(kst.Year(), kst.Month(), kst.Day()+1, OpenHour, OpenMinute, 0, 0, KST)
}

// TodayClose returns today's market close time (3:30 PM KST).
func TodayClose(t time.Time) time.Time {
	kst := t.In(KST)
	return time.Date(kst.Year(), kst.Month(), kst.Day(), CloseHour, CloseMinute, 0, 0, KST)
}
