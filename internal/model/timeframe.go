package model

// Timeframe is the requested candle granularity: daily-class periods
// (D, W, M) or an intraday minute bucket (60, 30, 15, 5, 1).
type Timeframe string

const (
	TimeframeDay    Timeframe = "D"
	TimeframeWeek   Timeframe = "W"
	TimeframeMonth  Timeframe = "M"
	TimeframeMin60  Timeframe = "60"
	TimeframeMin30  Timeframe = "30"
	TimeframeMin15  Timeframe = "15"
	TimeframeMin5   Timeframe = "5"
	TimeframeMin1   Timeframe = "1"
)

// Timeframes lists every supported timeframe token.
var Timeframes = []Timeframe{
	TimeframeDay, TimeframeWeek, TimeframeMonth,
	TimeframeMin60, TimeframeMin30, TimeframeMin15, TimeframeMin5, TimeframeMin1,
}

// ParseTimeframe maps a raw query token to a Timeframe.
// Unrecognized or empty input falls back to the daily timeframe.
func ParseTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if tf.Valid() {
		return tf
	}
	return TimeframeDay
}

// Valid reports whether tf is one of the supported tokens.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TimeframeDay, TimeframeWeek, TimeframeMonth,
		TimeframeMin60, TimeframeMin30, TimeframeMin15, TimeframeMin5, TimeframeMin1:
		return true
	}
	return false
}

// DailyClass reports whether tf selects the daily-class upstream
// endpoint (D/W/M) rather than the intraday one.
func (tf Timeframe) DailyClass() bool {
	return tf == TimeframeDay || tf == TimeframeWeek || tf == TimeframeMonth
}

// Granularity returns the time-label granularity produced by this timeframe.
func (tf Timeframe) Granularity() Granularity {
	switch tf {
	case TimeframeDay:
		return GranDaily
	case TimeframeWeek:
		return GranWeekly
	case TimeframeMonth:
		return GranMonthly
	default:
		return GranIntraday
	}
}
