package gateway

import "kiwoom-gateway/internal/model"

// Named events on the push transport. An unnamed comment frame serves
// as keep-alive.
const (
	EventInit        = "init"
	EventQuote       = "quote"
	EventCandle      = "candle"
	EventServerError = "server-error"
)

// InitPayload is the snapshot sent once per session: the historical
// series plus, when available, the current quote.
type InitPayload struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	Candles   []model.Candle  `json:"candles"`
	Quote     *model.Quote    `json:"quote,omitempty"`
}

// QuotePayload carries one refreshed quote.
type QuotePayload struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	Quote     model.Quote     `json:"quote"`
}

// CandlePayload carries the newest bar only; consumers upsert by time
// label rather than replacing the series.
type CandlePayload struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	Candle    model.Candle    `json:"candle"`
}

// ErrorPayload is a non-fatal advisory pushed when a refresh task fails.
type ErrorPayload struct {
	Message string `json:"message"`
}
