package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ksync/internal/logger"
	"ksync/internal/market"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	calls int
	fetch func(req FetchRequest) ([]market.Candle, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, req FetchRequest) ([]market.Candle, error) {
	f.calls++
	return f.fetch(req)
}

// hourlyCandles 生成 [start, start+n*1h) 的小时线。
func hourlyCandles(start time.Time, n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		openTime := start.Add(time.Duration(i) * time.Hour)
		out = append(out, market.Candle{
			OpenTime: openTime,
			Open:     100 + float64(i),
			High:     101 + float64(i),
			Low:      99 + float64(i),
			Close:    100.5 + float64(i),
			Volume:   1000,
		})
	}
	return out
}

// windowCandles 返回 series 中落在请求窗口内的部分。
func windowCandles(series []market.Candle, req FetchRequest) []market.Candle {
	var out []market.Candle
	for _, c := range series {
		ms := c.OpenTime.UnixMilli()
		if ms >= req.Start && ms <= req.End && len(out) < req.Limit {
			out = append(out, c)
		}
	}
	return out
}

func collectSink(dst *[]market.Candle) BatchSink {
	return func(_ context.Context, batch []market.Candle) (int, error) {
		*dst = append(*dst, batch...)
		return len(batch), nil
	}
}

func testFetcher(src CandleSource, ceiling int) *Fetcher {
	// 测试中速率限制调到不影响耗时的量级
	return NewFetcher(src, 60_000_000, ceiling, logger.Discard())
}

func TestFetchRangeWalksWindows(t *testing.T) {
	iv := mustInterval(t, "1h")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 10)
	src := &fakeSource{fetch: func(req FetchRequest) ([]market.Candle, error) {
		return windowCandles(series, req), nil
	}}
	f := testFetcher(src, 4)

	var got []market.Candle
	key := market.NewSeriesKey("BTCUSDT", iv)
	total, err := f.FetchRange(context.Background(), key, market.TimeRange{Start: start, End: start.Add(10 * time.Hour)}, collectSink(&got))
	assert.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Len(t, got, 10)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].OpenTime.Before(got[i].OpenTime), "必须按 open_time 升序持久化")
	}
	// 每批至多 4 根
	assert.Equal(t, 3, src.calls)
}

func TestFetchRangeDropsUnclosed(t *testing.T) {
	iv := mustInterval(t, "1h")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 5)
	series[2].Close = 0 // 未收盘哨兵

	src := &fakeSource{fetch: func(req FetchRequest) ([]market.Candle, error) {
		return windowCandles(series, req), nil
	}}
	f := testFetcher(src, 1000)

	var got []market.Candle
	key := market.NewSeriesKey("BTCUSDT", iv)
	total, err := f.FetchRange(context.Background(), key, market.TimeRange{Start: start, End: start.Add(5 * time.Hour)}, collectSink(&got))
	assert.NoError(t, err)
	// 落库条数 = 原始条数 - 1
	assert.Equal(t, len(series)-1, total)
	for _, c := range got {
		assert.NotZero(t, c.Close)
	}
}

// 数据源静默截断时游标只推进到实际返回的最后一根之后，
// 剩余部分在下一个子窗口重新请求。
func TestFetchRangeRecoversFromTruncation(t *testing.T) {
	iv := mustInterval(t, "1h")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 10)
	src := &fakeSource{}
	src.fetch = func(req FetchRequest) ([]market.Candle, error) {
		full := windowCandles(series, req)
		if src.calls == 1 && len(full) > 3 {
			return full[:3], nil // 第一次响应被截断
		}
		return full, nil
	}
	f := testFetcher(src, 1000)

	var got []market.Candle
	key := market.NewSeriesKey("BTCUSDT", iv)
	total, err := f.FetchRange(context.Background(), key, market.TimeRange{Start: start, End: start.Add(10 * time.Hour)}, collectSink(&got))
	assert.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, series[9].OpenTime, got[9].OpenTime)
}

func TestFetchRangeEmptyWindowIsNotError(t *testing.T) {
	iv := mustInterval(t, "1h")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{fetch: func(FetchRequest) ([]market.Candle, error) {
		return nil, nil // 临近实时边缘拿不到数据
	}}
	f := testFetcher(src, 4)

	var got []market.Candle
	key := market.NewSeriesKey("BTCUSDT", iv)
	total, err := f.FetchRange(context.Background(), key, market.TimeRange{Start: start, End: start.Add(10 * time.Hour)}, collectSink(&got))
	assert.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, got)
}

func TestFetchRangeTransportFailure(t *testing.T) {
	iv := mustInterval(t, "1h")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 4)
	src := &fakeSource{}
	src.fetch = func(req FetchRequest) ([]market.Candle, error) {
		if src.calls >= 2 {
			return nil, fmt.Errorf("status 500")
		}
		return windowCandles(series, req), nil
	}
	f := testFetcher(src, 2)

	var got []market.Candle
	key := market.NewSeriesKey("BTCUSDT", iv)
	total, err := f.FetchRange(context.Background(), key, market.TimeRange{Start: start, End: start.Add(4 * time.Hour)}, collectSink(&got))
	assert.Error(t, err)
	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
	// 失败前已持久化的子窗口不回滚
	assert.Equal(t, 2, total)
	assert.Len(t, got, 2)
	// 失败区间从未完成的子窗口开始
	assert.Equal(t, start.Add(2*time.Hour), fetchErr.Range.Start)
}

func TestFetchRangeCancelledBetweenWindows(t *testing.T) {
	iv := mustInterval(t, "1h")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := hourlyCandles(start, 6)
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{}
	src.fetch = func(req FetchRequest) ([]market.Candle, error) {
		defer cancel() // 本次请求完成后才触发取消
		return windowCandles(series, req), nil
	}
	f := testFetcher(src, 2)

	var got []market.Candle
	key := market.NewSeriesKey("BTCUSDT", iv)
	total, err := f.FetchRange(ctx, key, market.TimeRange{Start: start, End: start.Add(6 * time.Hour)}, collectSink(&got))
	assert.ErrorIs(t, err, context.Canceled)
	// 进行中的批次先落库，取消在子窗口之间生效
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, src.calls)
}
