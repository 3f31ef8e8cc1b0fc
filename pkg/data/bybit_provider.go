package data

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/monitoring"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Bybit error codes with special handling
const (
	ErrCodeParams            = 10001
	ErrCodeInvalidAPIKey     = 10003
	ErrCodeInvalidSignature  = 10004
	ErrCodeRateLimitExceeded = 10006
)

// maxKlineLimit is the largest page the kline endpoint serves
const maxKlineLimit = 1000

// APIError is a non-zero retCode returned by Bybit
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Bybit API error %d: %s", e.Code, e.Message)
}

// Category implements errors.Categorized
func (e *APIError) Category() errors.ErrorCategory {
	switch e.Code {
	case ErrCodeRateLimitExceeded:
		return errors.ErrorCategoryRateLimit
	case ErrCodeParams, ErrCodeInvalidAPIKey, ErrCodeInvalidSignature:
		return errors.ErrorCategoryConfiguration
	}
	return errors.ErrorCategoryTemporary
}

// RetryConfig holds the backoff of failed kline requests
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns 3 retries starting at one second
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
}

// BybitConfig configures BybitProvider
type BybitConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
	// RequestsPerSecond stays below the public endpoint limit of 120/min
	RequestsPerSecond float64
	Retry             RetryConfig
}

// DefaultBybitConfig returns mainnet settings at two requests per second
func DefaultBybitConfig() BybitConfig {
	return BybitConfig{RequestsPerSecond: 2, Retry: DefaultRetryConfig()}
}

// klineCall performs one kline request with the given query parameters
type klineCall func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// BybitProvider downloads klines page by page. Every request passes a rate
// limiter and a circuit breaker; retryable failures back off exponentially.
type BybitProvider struct {
	call    klineCall
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	log     zerolog.Logger
}

// NewBybitProvider connects to mainnet or testnet
func NewBybitProvider(cfg BybitConfig, log zerolog.Logger) *BybitProvider {
	baseURL := bybit_api.MAINNET
	if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}
	client := bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL))
	call := func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	}
	return newBybitProvider(call, cfg, log)
}

func newBybitProvider(call klineCall, cfg BybitConfig, log zerolog.Logger) *BybitProvider {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(math.Max(1, math.Ceil(cfg.RequestsPerSecond)))
	}

	log = log.With().Str("component", "bybit").Logger()
	settings := gobreaker.Settings{
		Name:     "bybit-kline",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// configuration errors do not count as exchange failures
			return err == nil || errors.CategoryOf(err) == errors.ErrorCategoryConfiguration
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
	return &BybitProvider{
		call:    call,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		retry:   cfg.Retry,
		log:     log,
	}
}

// BybitInterval converts "1m".."12h", "1d", "1w" and "1M" to the interval
// codes of the kline endpoint. Native codes pass through.
func BybitInterval(interval string) (string, error) {
	switch interval {
	case "1", "3", "5", "15", "30", "60", "120", "240", "360", "720", "D", "W", "M":
		return interval, nil
	case "1M":
		return "M", nil
	}
	switch m := IntervalMinutes(interval); m {
	case "1", "3", "5", "15", "30", "60", "120", "240", "360", "720":
		return m, nil
	case "1440":
		return "D", nil
	case "10080":
		return "W", nil
	}
	return "", errors.NewConfigError("data", "interval", "unsupported bybit interval %q", interval)
}

// FetchKlines downloads bars in ascending time order. Without a start time
// only the most recent page is fetched.
func (p *BybitProvider) FetchKlines(ctx context.Context, req KlineRequest) ([]types.OHLCV, error) {
	interval, err := BybitInterval(req.Interval)
	if err != nil {
		return nil, err
	}
	if req.Symbol == "" {
		return nil, errors.NewConfigError("data", "symbol", "symbol is required")
	}
	if req.Category == "" {
		req.Category = "linear"
	}
	if req.Limit <= 0 || req.Limit > maxKlineLimit {
		req.Limit = maxKlineLimit
	}
	end := req.End
	if end.IsZero() {
		end = time.Now()
	}
	startMs, endMs := req.Start.UnixMilli(), end.UnixMilli()
	if req.Start.IsZero() {
		startMs = math.MinInt64
	}

	var bars []types.OHLCV
	cursor := endMs
	for page := 1; ; page++ {
		params := map[string]interface{}{
			"category": req.Category,
			"symbol":   strings.ToUpper(req.Symbol),
			"interval": interval,
			"end":      cursor,
			"limit":    req.Limit,
		}
		if !req.Start.IsZero() {
			params["start"] = startMs
		}

		batch, err := p.fetchPage(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		oldest := batch[0].Timestamp.UnixMilli()
		for _, b := range batch {
			ts := b.Timestamp.UnixMilli()
			if ts < oldest {
				oldest = ts
			}
			if ts >= startMs && ts <= endMs {
				bars = append(bars, b)
			}
		}
		p.log.Debug().Int("page", page).Int("bars", len(bars)).Msg("Kline page fetched")

		if req.Start.IsZero() || oldest <= startMs || len(batch) < req.Limit {
			break
		}
		cursor = oldest - 1
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return NewDefaultDataFilter().RemoveDuplicates(bars), nil
}

// fetchPage runs one request through the limiter, breaker and retry loop
func (p *BybitProvider) fetchPage(ctx context.Context, params map[string]interface{}) ([]types.OHLCV, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := p.breaker.Execute(func() (interface{}, error) {
			raw, err := p.call(ctx, params)
			if err != nil {
				return nil, errors.CategorizeDataError(err, "bybit", "kline")
			}
			return parseKlineResponse(raw)
		})
		if err == nil {
			monitoring.RecordDataRequest("bybit", "ok")
			return res.([]types.OHLCV), nil
		}
		lastErr = err

		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			monitoring.RecordDataRequest("bybit", "rejected")
			return nil, &errors.DataError{Kind: errors.ErrorCategoryTemporary, Component: "bybit", Operation: "kline", Underlying: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.IsRetryable(err) || attempt == p.retry.MaxRetries {
			break
		}

		monitoring.RecordDataRequest("bybit", "retry")
		delay := p.backoff(attempt)
		p.log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("Kline request failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	monitoring.RecordDataRequest("bybit", "error")
	return nil, lastErr
}

// backoff is InitialDelay*factor^attempt capped at MaxDelay, with 10% jitter
func (p *BybitProvider) backoff(attempt int) time.Duration {
	cfg := p.retry
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay + time.Duration(float64(delay)*0.1*(2*rand.Float64()-1))
}

// parseKlineResponse decodes the list of
// [startTime, open, high, low, close, volume, turnover] rows
func parseKlineResponse(response interface{}) ([]types.OHLCV, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok || serverResp == nil {
		return nil, fmt.Errorf("invalid response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return nil, &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var klineResult struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kline result: %w", err)
	}

	bars := make([]types.OHLCV, 0, len(klineResult.List))
	for _, item := range klineResult.List {
		if len(item) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(item[0], 10, 64)
		if err != nil {
			continue
		}
		var v [5]float64
		valid := true
		for i := range v {
			if v[i], err = strconv.ParseFloat(item[i+1], 64); err != nil {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		bars = append(bars, types.OHLCV{
			Timestamp: time.UnixMilli(ms).UTC(),
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    v[4],
		})
	}
	return bars, nil
}
