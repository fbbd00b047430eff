package kiwoom

import (
	"time"

	"kiwoom-gateway/internal/model"
)

// Synthetic fixtures served in mock mode and, outside production, when
// the upstream call fails. One fixed series per timeframe, ordered
// oldest to newest.

func bar(label string, open, high, low, close float64, volume int64) model.Candle {
	return model.Candle{
		Time:   model.NewTimeLabel(label),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}
}

var mockCandles = map[model.Timeframe][]model.Candle{
	model.TimeframeDay: {
		bar("2025-02-03", 71200, 73100, 70800, 72800, 1254300),
		bar("2025-02-04", 72800, 73500, 72100, 73200, 1182200),
		bar("2025-02-05", 73200, 74400, 73000, 74150, 1498300),
		bar("2025-02-06", 74150, 75200, 73900, 74800, 1375400),
		bar("2025-02-07", 74800, 75800, 74500, 75600, 1587600),
	},
	model.TimeframeWeek: {
		bar("2025-W01", 68900, 71200, 68300, 70600, 5321200),
		bar("2025-W02", 70600, 72800, 70100, 72100, 4983300),
		bar("2025-W03", 72100, 74400, 71800, 74050, 5642800),
	},
	model.TimeframeMonth: {
		bar("2024-12", 66500, 70200, 65100, 69800, 18923300),
		bar("2025-01", 69800, 74400, 69400, 74150, 17655200),
	},
	model.TimeframeMin60: {
		bar("2025-02-07T09:00", 74800, 75100, 74400, 74900, 243000),
		bar("2025-02-07T10:00", 74900, 75300, 74200, 74650, 220400),
		bar("2025-02-07T11:00", 74650, 75600, 74600, 75400, 198700),
	},
	model.TimeframeMin30: {
		bar("2025-02-07T09:00", 74800, 75000, 74500, 74700, 143000),
		bar("2025-02-07T09:30", 74700, 75200, 74600, 75100, 121400),
	},
	model.TimeframeMin15: {
		bar("2025-02-07T09:00", 74800, 74950, 74500, 74680, 83000),
		bar("2025-02-07T09:15", 74680, 74820, 74480, 74750, 76200),
	},
	model.TimeframeMin5: {
		bar("2025-02-07T09:00", 74800, 74880, 74650, 74710, 45200),
		bar("2025-02-07T09:05", 74710, 74790, 74680, 74760, 39800),
	},
	model.TimeframeMin1: {
		bar("2025-02-07T09:00", 74800, 74820, 74760, 74780, 12800),
		bar("2025-02-07T09:01", 74780, 74820, 74740, 74760, 9600),
	},
}

// MockCandles returns a copy of the synthetic series for the timeframe.
// Unknown timeframes fall back to the daily series.
func MockCandles(tf model.Timeframe) []model.Candle {
	src, ok := mockCandles[tf]
	if !ok {
		src = mockCandles[model.TimeframeDay]
	}
	out := make([]model.Candle, len(src))
	copy(out, src)
	return out
}

// MockQuote returns the synthetic quote, stamped with the current time.
func MockQuote() model.Quote {
	return model.Quote{
		Symbol:        "005930",
		Name:          "삼성전자",
		Price:         75600,
		Change:        980,
		ChangePercent: 1.32,
		Open:          74800,
		High:          75800,
		Low:           74500,
		Volume:        1587600,
		UpdatedAt:     time.Now().UTC(),
	}
}
