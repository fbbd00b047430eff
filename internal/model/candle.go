// Package model defines the normalized market data types shared by the
// upstream client, the push-session gateway and the stream consumer.
package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// Granularity classifies the lexical shape of a candle time label.
type Granularity int

const (
	GranUnknown Granularity = iota
	GranDaily
	GranWeekly
	GranMonthly
	GranIntraday
)

func (g Granularity) String() string {
	switch g {
	case GranDaily:
		return "daily"
	case GranWeekly:
		return "weekly"
	case GranMonthly:
		return "monthly"
	case GranIntraday:
		return "intraday"
	}
	return "unknown"
}

// TimeLabel is a candle timestamp as a tagged value: the raw upstream
// label plus its granularity. The label encodes granularity lexically
// (8-digit or ISO date for daily, YYYY-Www for weekly, YYYY-MM for
// monthly, date-plus-time for intraday); tagging it once at the edge
// saves every consumer from re-deriving it from string shape.
type TimeLabel struct {
	Gran  Granularity
	Value string
}

// NewTimeLabel tags a raw label with its inferred granularity.
func NewTimeLabel(raw string) TimeLabel {
	return TimeLabel{Gran: InferGranularity(raw), Value: raw}
}

// InferGranularity classifies a raw time label by its lexical shape.
func InferGranularity(raw string) Granularity {
	switch {
	case raw == "":
		return GranUnknown
	case strings.ContainsAny(raw, "T :") || allDigits(raw) && len(raw) >= 10:
		// "2025-02-07T09:00", "20250207090000", "090000" style intraday stamps
		return GranIntraday
	case len(raw) == 8 && strings.Contains(raw, "-W"):
		// "2025-W01"
		return GranWeekly
	case len(raw) == 8 && allDigits(raw):
		// "20250207"
		return GranDaily
	case len(raw) == 10 && strings.Count(raw, "-") == 2:
		// "2025-02-07"
		return GranDaily
	case len(raw) == 7 && strings.Count(raw, "-") == 1:
		// "2025-01"
		return GranMonthly
	case len(raw) == 6 && allDigits(raw):
		// "090000" — intraday contract-time stamp
		return GranIntraday
	}
	return GranUnknown
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (l TimeLabel) String() string { return l.Value }

// MarshalJSON emits the raw label so wire payloads stay plain strings.
func (l TimeLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Value)
}

// UnmarshalJSON re-tags the granularity from the label shape.
func (l *TimeLabel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = NewTimeLabel(raw)
	return nil
}

// Candle is one normalized OHLCV bar. Within one series all bars share
// the same label granularity and series run oldest to newest.
type Candle struct {
	Time   TimeLabel `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// UpsertCandle merges one bar into an ordered series by time label:
// a matching label replaces the existing bar in place, a new label is
// inserted keeping the series ordered oldest to newest. Labels of one
// granularity compare correctly as plain strings, so lexical order is
// chronological order.
func UpsertCandle(series []Candle, c Candle) []Candle {
	for i := range series {
		if series[i].Time.Value == c.Time.Value {
			series[i] = c
			return series
		}
	}
	i := sort.Search(len(series), func(i int) bool {
		return series[i].Time.Value > c.Time.Value
	})
	series = append(series, Candle{})
	copy(series[i+1:], series[i:])
	series[i] = c
	return series
}
