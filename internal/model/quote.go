package model

import "time"

// Quote is a point-in-time snapshot for one instrument. UpdatedAt is
// the local capture time, never the upstream clock.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	Volume        int64     `json:"volume,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
