// Package kiwoom implements the credentialed upstream market-data
// client: token lifecycle, endpoint selection by timeframe class,
// response normalization and the mock/degradation policy.
package kiwoom

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kiwoom-gateway/internal/metrics"
	"kiwoom-gateway/internal/model"
)

const (
	endpointDailyChart    = "/uapi/domestic-stock/v1/quotations/inquire-daily-chartprice"
	endpointIntradayChart = "/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice"
	endpointQuote         = "/uapi/domestic-stock/v1/quotations/inquire-price"
)

// Config holds the upstream connection settings for one vendor account.
type Config struct {
	BaseURL      string
	AppKey       string
	AppSecret    string
	CustomerType string

	// Transaction-id headers selecting the specific report
	TRIDHistorical string
	TRIDQuote      string

	// MockMode replaces every upstream call with synthetic data.
	MockMode bool
	// Production disables the synthetic-data fallback on call failure.
	Production bool
}

// ResponseCache is an optional short-TTL cache consulted before the
// upstream and filled after. A nil cache disables caching.
type ResponseCache interface {
	GetCandles(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Candle, bool)
	SetCandles(ctx context.Context, symbol string, tf model.Timeframe, series []model.Candle)
	GetQuote(ctx context.Context, symbol string) (model.Quote, bool)
	SetQuote(ctx context.Context, symbol string, q model.Quote)
}

// Client calls the vendor's historical and quote endpoints and
// normalizes the heterogeneous upstream schemas into the uniform model.
type Client struct {
	cfg        Config
	tokens     *TokenSource
	httpClient *http.Client
	cache      ResponseCache
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates an upstream client. Cache and metrics may be nil.
func NewClient(cfg Config, tokens *TokenSource, cache ResponseCache, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache,
		metrics:    m,
		logger:     logger.With(slog.String("component", "kiwoom")),
	}
}

// historicalRow is one bar as the chart endpoints return it. Daily-class
// rows carry stck_bsop_date, intraday rows carry stck_cntg_hour; numeric
// fields may arrive comma-formatted.
type historicalRow struct {
	Date   string `json:"stck_bsop_date"`
	Hour   string `json:"stck_cntg_hour"`
	Open   string `json:"stck_oprc"`
	Close  string `json:"stck_clpr"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Volume string `json:"acml_tr_pbmn"`
}

type historicalResponse struct {
	Output2 []historicalRow `json:"output2"`
}

type quoteOutput struct {
	Price         string `json:"stck_prpr"`
	Change        string `json:"prdy_vrss"`
	ChangePercent string `json:"prdy_ctrt"`
	Volume        string `json:"acml_vol"`
	High          string `json:"stck_hgpr"`
	Low           string `json:"stck_lwpr"`
	Open          string `json:"stck_oprc"`
	Name          string `json:"bstp_kor_isnm"`
}

type quoteResponse struct {
	Output quoteOutput `json:"output"`
}

// FetchHistorical returns the OHLCV series for (symbol, timeframe),
// oldest bar first. In mock mode, or when no upstream base address is
// configured, it returns the synthetic fixture without network access.
func (c *Client) FetchHistorical(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Candle, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "empty instrument code"}
	}

	if c.cfg.MockMode || c.cfg.BaseURL == "" {
		return MockCandles(tf), nil
	}

	if c.cache != nil {
		if series, ok := c.cache.GetCandles(ctx, symbol, tf); ok {
			return series, nil
		}
	}

	params := url.Values{
		"fid_cond_mrkt_div_code": {"J"},
		"fid_input_iscd":         {symbol},
		"fid_org_adj_prc":        {"0"},
	}

	// Both the period code and the date range are "most recent"
	// sentinels; no backfill window is exposed.
	endpoint := endpointDailyChart
	if tf.DailyClass() {
		params.Set("fid_period_div_code", string(tf))
		params.Set("fid_input_date_1", "0")
		params.Set("fid_input_date_2", "0")
	} else {
		endpoint = endpointIntradayChart
		params.Set("fid_period_div_code", "H")
		params.Set("fid_input_hour_24", string(tf))
		params.Set("fid_input_date_1", "0")
	}

	var payload historicalResponse
	if err := c.call(ctx, endpoint, params, c.cfg.TRIDHistorical, &payload); err != nil {
		if !c.cfg.Production {
			c.logger.Warn("historical fetch failed, serving synthetic data",
				slog.String("symbol", symbol), slog.String("timeframe", string(tf)),
				slog.String("err", err.Error()))
			return MockCandles(tf), nil
		}
		return nil, err
	}

	gran := tf.Granularity()
	series := make([]model.Candle, 0, len(payload.Output2))
	// Upstream returns newest-first; walk backwards so the series comes
	// out oldest-first.
	for i := len(payload.Output2) - 1; i >= 0; i-- {
		row := payload.Output2[i]
		label := row.Date
		if !tf.DailyClass() {
			label = row.Hour
		}
		if label == "" {
			continue
		}
		series = append(series, model.Candle{
			Time:   model.TimeLabel{Gran: gran, Value: label},
			Open:   toNumber(row.Open),
			High:   toNumber(row.High),
			Low:    toNumber(row.Low),
			Close:  toNumber(row.Close),
			Volume: int64(toNumber(row.Volume)),
		})
	}

	if c.cache != nil {
		c.cache.SetCandles(ctx, symbol, tf, series)
	}
	return series, nil
}

// FetchQuote returns the current quote for symbol, stamped with local
// capture time.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return model.Quote{}, &ValidationError{Field: "symbol", Reason: "empty instrument code"}
	}

	if c.cfg.MockMode || c.cfg.BaseURL == "" {
		return MockQuote(), nil
	}

	if c.cache != nil {
		if q, ok := c.cache.GetQuote(ctx, symbol); ok {
			return q, nil
		}
	}

	params := url.Values{
		"fid_cond_mrkt_div_code": {"J"},
		"fid_input_iscd":         {symbol},
	}

	var payload quoteResponse
	if err := c.call(ctx, endpointQuote, params, c.cfg.TRIDQuote, &payload); err != nil {
		if !c.cfg.Production {
			c.logger.Warn("quote fetch failed, serving synthetic data",
				slog.String("symbol", symbol), slog.String("err", err.Error()))
			return MockQuote(), nil
		}
		return model.Quote{}, err
	}

	out := payload.Output
	q := model.Quote{
		Symbol:        symbol,
		Name:          out.Name,
		Price:         toNumber(out.Price),
		Change:        toNumber(out.Change),
		ChangePercent: toNumber(out.ChangePercent),
		Open:          toNumber(out.Open),
		High:          toNumber(out.High),
		Low:           toNumber(out.Low),
		Volume:        int64(toNumber(out.Volume)),
		UpdatedAt:     time.Now().UTC(),
	}

	if c.cache != nil {
		c.cache.SetQuote(ctx, symbol, q)
	}
	return q, nil
}

// call performs one authenticated GET against a data endpoint and
// decodes the JSON body into out.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values, trID string, out any) error {
	token, err := c.tokens.Acquire(ctx)
	if err != nil {
		c.observe(endpoint, "auth_error", 0)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", c.cfg.CustomerType)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, "error", time.Since(start))
		return &UpstreamError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "error", time.Since(start))
		return &UpstreamError{Status: resp.StatusCode, Body: "read body: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(endpoint, "error", time.Since(start))
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = resp.Status
		}
		return &UpstreamError{Status: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.observe(endpoint, "error", time.Since(start))
		return &UpstreamError{Status: resp.StatusCode, Body: "decode response: " + err.Error()}
	}

	c.observe(endpoint, "ok", time.Since(start))
	return nil
}

func (c *Client) observe(endpoint, outcome string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	if d > 0 {
		c.metrics.UpstreamDuration.Observe(d.Seconds())
	}
}

// toNumber normalizes a numeric field that may arrive comma-formatted.
// Non-numeric or empty input yields 0.
func toNumber(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
