package market

import (
	"encoding/json"
	"strings"
	"time"
)

// SeriesKey 标识一条 K 线序列：(交易对, 周期)。
type SeriesKey struct {
	Symbol   string
	Interval Interval
}

func NewSeriesKey(symbol string, iv Interval) SeriesKey {
	return SeriesKey{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Interval: iv}
}

func (k SeriesKey) String() string {
	return k.Symbol + "@" + k.Interval.String()
}

// Candle 是一根已收盘的 K 线。Close 为 0 的记录不会被物化。
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     float64         `json:"open"`
	High     float64         `json:"high"`
	Low      float64         `json:"low"`
	Close    float64         `json:"close"`
	Volume   float64         `json:"volume"`
	Extra    json.RawMessage `json:"extra,omitempty"` // close_time/trades/quote_volume 附加信息，原样透传
}

// TimeRange 表示半开区间 [Start, End)。
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) IsEmpty() bool {
	return !r.Start.Before(r.End)
}

func (r TimeRange) String() string {
	return "[" + r.Start.UTC().Format(time.RFC3339) + ", " + r.End.UTC().Format(time.RFC3339) + ")"
}
