package domain

// Candle is one OHLC data point as returned by the price API:
// [timestamp(ms), open, high, low, close].
type Candle struct {
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
}

// ChartDataItem is a derived cross-price point produced by joining two
// candle series on timestamp. Ephemeral, recomputed per request.
type ChartDataItem struct {
	Time             int64   `json:"time"`
	Price            float64 `json:"price"`
	InputTokenPrice  float64 `json:"inputTokenPrice"`
	OutputTokenPrice float64 `json:"outputTokenPrice"`
}

// StoredCandle is a candle archived per token identifier.
// Corresponds to the candles table in ClickHouse.
type StoredCandle struct {
	TokenID     string
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
}
