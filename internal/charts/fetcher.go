// Package charts produces derived cross-price chart data by joining two
// independently fetched OHLC candle series. Chart data is UI decoration:
// every failure degrades to an empty series instead of an error.
package charts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/storage"
)

// stableQuotes are assets treated as stable-value. When the quote leg is
// stable the derived price is base/quote; otherwise it is inverted so the
// price stays denominated in the non-stable leg.
var stableQuotes = map[string]bool{
	"usd-coin": true,
	"tether":   true,
}

// FetcherConfig configures the chart data source.
type FetcherConfig struct {
	// BaseURL is the OHLC API root.
	BaseURL string
	// RequestsPerSecond throttles upstream calls; the public OHLC API
	// rate-limits aggressively.
	RequestsPerSecond float64
	// Timeout bounds each fetch.
	Timeout time.Duration
}

// DefaultFetcherConfig returns the production configuration.
func DefaultFetcherConfig(baseURL string) FetcherConfig {
	return FetcherConfig{
		BaseURL:           baseURL,
		RequestsPerSecond: 0.5,
		Timeout:           15 * time.Second,
	}
}

// Fetcher fetches and joins OHLC candle series.
type Fetcher struct {
	http    *resty.Client
	limiter *rate.Limiter
	archive storage.CandleStore // optional candle archive
	log     *logrus.Entry
}

// NewFetcher creates a fetcher. archive may be nil; when set, fetched candles
// are persisted best-effort.
func NewFetcher(config FetcherConfig, archive storage.CandleStore) *Fetcher {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 0.5
	}

	return &Fetcher{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(config.BaseURL, "/")).
			SetTimeout(config.Timeout),
		limiter: rate.NewLimiter(rate.Limit(rps), 2),
		archive: archive,
		log:     logrus.WithField("component", "charts"),
	}
}

// FetchChartData fetches candles for both tokens and joins them on exact
// timestamp. If either identifier is empty it returns an empty series without
// issuing requests. Unmatched candles are dropped (no interpolation, no
// carry-forward); the first series' iteration order is preserved.
func (f *Fetcher) FetchChartData(ctx context.Context, baseTokenID, quoteTokenID, daysToShow string) []domain.ChartDataItem {
	if baseTokenID == "" || quoteTokenID == "" {
		return []domain.ChartDataItem{}
	}

	input, err := f.fetchCandles(ctx, baseTokenID, daysToShow)
	if err != nil {
		f.log.WithError(err).WithField("token", baseTokenID).Debug("candle fetch failed")
		return []domain.ChartDataItem{}
	}
	output, err := f.fetchCandles(ctx, quoteTokenID, daysToShow)
	if err != nil {
		f.log.WithError(err).WithField("token", quoteTokenID).Debug("candle fetch failed")
		return []domain.ChartDataItem{}
	}

	f.archiveCandles(ctx, baseTokenID, input)
	f.archiveCandles(ctx, quoteTokenID, output)

	return Join(input, output, stableQuotes[quoteTokenID])
}

// Join matches candles of the two series by exact timestamp and computes the
// derived price for each pair. A linear scan is fine at these series lengths.
func Join(input, output []domain.Candle, stableQuote bool) []domain.ChartDataItem {
	items := make([]domain.ChartDataItem, 0, len(input))
	for _, in := range input {
		match, ok := findByTimestamp(output, in.TimestampMs)
		if !ok {
			continue
		}

		price := match.Close / in.Close
		if stableQuote {
			price = in.Close / match.Close
		}

		items = append(items, domain.ChartDataItem{
			Time:             in.TimestampMs,
			Price:            price,
			InputTokenPrice:  in.Close,
			OutputTokenPrice: match.Close,
		})
	}
	return items
}

func findByTimestamp(candles []domain.Candle, ts int64) (domain.Candle, bool) {
	for _, c := range candles {
		if c.TimestampMs == ts {
			return c, true
		}
	}
	return domain.Candle{}, false
}

// fetchCandles retrieves one OHLC series. The API returns an array of
// [timestamp, open, high, low, close] tuples.
func (f *Fetcher) fetchCandles(ctx context.Context, tokenID, daysToShow string) ([]domain.Candle, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("vs_currency", "usd").
		SetQueryParam("days", daysToShow).
		Get(fmt.Sprintf("/coins/%s/ohlc", tokenID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ohlc fetch: %s", resp.Status())
	}

	var tuples [][]float64
	if err := json.Unmarshal(resp.Body(), &tuples); err != nil {
		return nil, fmt.Errorf("decode ohlc: %w", err)
	}

	candles := make([]domain.Candle, 0, len(tuples))
	for _, t := range tuples {
		if len(t) < 5 {
			return nil, fmt.Errorf("ohlc tuple has %d fields", len(t))
		}
		candles = append(candles, domain.Candle{
			TimestampMs: int64(t[0]),
			Open:        t[1],
			High:        t[2],
			Low:         t[3],
			Close:       t[4],
		})
	}
	return candles, nil
}

// archiveCandles persists fetched candles when an archive is configured.
func (f *Fetcher) archiveCandles(ctx context.Context, tokenID string, candles []domain.Candle) {
	if f.archive == nil || len(candles) == 0 {
		return
	}

	stored := make([]*domain.StoredCandle, 0, len(candles))
	for _, c := range candles {
		stored = append(stored, &domain.StoredCandle{
			TokenID:     tokenID,
			TimestampMs: c.TimestampMs,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
		})
	}

	if err := f.archive.InsertBatch(ctx, stored); err != nil {
		f.log.WithError(err).Debug("candle archive write failed")
	}
}
