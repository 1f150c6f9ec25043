package market

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// 单位字符与 Binance 的 interval 编码保持一致：
// s=秒 m=分 h=时 d=天 w=周 M=月（大小写敏感，m 与 M 不可混淆）。
const (
	UnitSecond = 's'
	UnitMinute = 'm'
	UnitHour   = 'h'
	UnitDay    = 'd'
	UnitWeek   = 'w'
	UnitMonth  = 'M'
)

// Interval 是解析后的周期定义。
type Interval struct {
	N    int
	Unit byte
}

// InvalidIntervalError 表示周期串不符合 <正整数><单位> 格式。
type InvalidIntervalError struct {
	Spec string
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("非法的时间间隔: %q（需要 <正整数><s|m|h|d|w|M>）", e.Spec)
}

var intervalPattern = regexp.MustCompile(`^([1-9][0-9]*)([smhdwM])$`)

// 常见的冗长写法归一化（原样保留大小写语义，1month 归一到大写 M）。
var verboseIntervals = map[string]string{
	"1min":   "1m",
	"5min":   "5m",
	"15min":  "15m",
	"30min":  "30m",
	"1hour":  "1h",
	"4hour":  "4h",
	"1day":   "1d",
	"1week":  "1w",
	"1month": "1M",
}

// ParseInterval 解析周期串。大小写敏感：1m 是分钟，1M 是月。
func ParseInterval(spec string) (Interval, error) {
	if norm, ok := verboseIntervals[spec]; ok {
		spec = norm
	}
	m := intervalPattern.FindStringSubmatch(spec)
	if m == nil {
		return Interval{}, &InvalidIntervalError{Spec: spec}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Interval{}, &InvalidIntervalError{Spec: spec}
	}
	return Interval{N: n, Unit: m[2][0]}, nil
}

func (iv Interval) String() string {
	return strconv.Itoa(iv.N) + string(iv.Unit)
}

// IsMonth 报告是否为日历月周期（没有固定长度）。
func (iv Interval) IsMonth() bool { return iv.Unit == UnitMonth }

// Duration 返回固定周期长度；月没有固定长度，返回 0，
// 需要估算跨度的调用方必须显式使用 ApproxDuration。
func (iv Interval) Duration() time.Duration {
	n := time.Duration(iv.N)
	switch iv.Unit {
	case UnitSecond:
		return n * time.Second
	case UnitMinute:
		return n * time.Minute
	case UnitHour:
		return n * time.Hour
	case UnitDay:
		return n * 24 * time.Hour
	case UnitWeek:
		return n * 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ApproxDuration 返回用于批次估算的跨度，月按 30 天近似。
// 仅用于切分批次，不参与边界对齐。
func (iv Interval) ApproxDuration() time.Duration {
	if iv.IsMonth() {
		return time.Duration(iv.N) * 30 * 24 * time.Hour
	}
	return iv.Duration()
}

// PeriodsPerYear 返回一年包含的周期数（按 365 天年）。
func (iv Interval) PeriodsPerYear() float64 {
	if iv.IsMonth() {
		return 12.0 / float64(iv.N)
	}
	d := iv.Duration()
	if d <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(d)
}

// Floor 将 t 向下取整到所在周期的起点。
// 子月周期以当天 UTC 零点为对齐锚，保证边界跨天稳定；
// 月周期对齐到日历月首日零点。
func (iv Interval) Floor(t time.Time) time.Time {
	t = t.UTC()
	if iv.IsMonth() {
		monthIdx := int(t.Month()) - 1
		monthIdx -= monthIdx % iv.N
		return time.Date(t.Year(), time.Month(monthIdx+1), 1, 0, 0, 0, 0, time.UTC)
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	d := iv.Duration()
	if d <= 0 {
		return midnight
	}
	offset := t.Sub(midnight)
	return midnight.Add(offset / d * d)
}

// LastClosed 返回最近一根已收盘周期的开盘时间：floor(now) 往回退一个周期。
func (iv Interval) LastClosed(now time.Time) time.Time {
	floored := iv.Floor(now)
	if iv.IsMonth() {
		return floored.AddDate(0, -iv.N, 0)
	}
	return floored.Add(-iv.Duration())
}

// Next 返回 t 之后下一根周期的开盘时间。
func (iv Interval) Next(t time.Time) time.Time {
	if iv.IsMonth() {
		return t.AddDate(0, iv.N, 0)
	}
	return t.Add(iv.Duration())
}
