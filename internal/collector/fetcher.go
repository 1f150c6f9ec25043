package collector

import (
	"context"
	"fmt"
	"time"

	"ksync/internal/logger"
	"ksync/internal/market"

	"golang.org/x/time/rate"
)

// FetchError 表示某个子区间的远端拉取失败；Range 为尚未取到的剩余区间。
type FetchError struct {
	Range market.TimeRange
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("拉取 %s 失败: %v", e.Range, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// BatchSink 持久化一个批次，返回实际新插入的数量。
// Fetcher 在 sink 成功返回之后才推进游标（先写后进）。
type BatchSink func(ctx context.Context, batch []market.Candle) (int, error)

// Fetcher 将缺口区间按 batchCeiling 根上限切成连续子窗口逐个拉取。
// 子窗口之间串行执行并受速率限制约束，同一个 Fetcher 可被多个序列共用。
type Fetcher struct {
	source  CandleSource
	limiter *rate.Limiter
	ceiling int
	log     *logger.Logger
}

// NewFetcher 构造 Fetcher。ratePerMin 为每分钟允许的远端调用数，
// ceiling 为单次请求的最大 K 线根数（Binance 上限 1000）。
func NewFetcher(source CandleSource, ratePerMin, ceiling int, log *logger.Logger) *Fetcher {
	if ratePerMin <= 0 {
		ratePerMin = 600
	}
	if ceiling <= 0 || ceiling > 1000 {
		ceiling = 1000
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), 1),
		ceiling: ceiling,
		log:     log,
	}
}

// FetchRange 按批走完 rng，把每个批次交给 sink，返回插入总数。
// 游标推进到最后一根返回 K 线之后，而不是子窗口尾：数据源静默截断时，
// 剩下的部分会在下一个子窗口自然重新请求，不会造成假完成。
// 已持久化的前序批次在失败时依然有效。
func (f *Fetcher) FetchRange(ctx context.Context, key market.SeriesKey, rng market.TimeRange, sink BatchSink) (int, error) {
	iv := key.Interval
	step := iv.ApproxDuration()
	cursor := rng.Start
	total := 0
	for cursor.Before(rng.End) {
		// 取消只在子窗口之间生效，进行中的请求会先完成并落库
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return total, err
		}
		windowEnd := cursor.Add(time.Duration(f.ceiling) * step)
		if windowEnd.After(rng.End) {
			windowEnd = rng.End
		}
		req := FetchRequest{
			Symbol:   key.Symbol,
			Interval: iv.String(),
			Start:    cursor.UnixMilli(),
			End:      windowEnd.UnixMilli() - 1, // 半开区间，窗口尾的 K 线属于下一个窗口
			Limit:    f.ceiling,
		}
		raw, err := f.source.Fetch(ctx, req)
		if err != nil {
			return total, &FetchError{Range: market.TimeRange{Start: cursor, End: rng.End}, Err: err}
		}
		if len(raw) == 0 {
			// 临近实时边缘拿不到数据属正常，跳到窗口尾继续
			f.log.Debugf("[collector] %s 子窗口 [%s, %s) 无数据", key, cursor.UTC().Format(time.RFC3339), windowEnd.UTC().Format(time.RFC3339))
			cursor = windowEnd
			continue
		}
		batch := dropUnclosed(raw)
		if len(batch) > 0 {
			n, err := sink(ctx, batch)
			if err != nil {
				return total, err
			}
			total += n
		}
		cursor = iv.Next(raw[len(raw)-1].OpenTime)
	}
	return total, nil
}

// dropUnclosed 过滤掉没有可用收盘价的记录（未收盘周期的哨兵值）。
func dropUnclosed(candles []market.Candle) []market.Candle {
	out := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Close == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}
