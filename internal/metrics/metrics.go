package metrics

import (
	"math"
	"time"

	"ksync/internal/logger"
	"ksync/internal/market"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

const (
	// 波动率低于该值视为零方差，夏普比率直接取 0。
	volatilityEpsilon = 1e-10
	// 夏普比率的合理区间，越界视为计算异常并重置为 0。
	sharpeSaneBand = 100.0

	hoursPerYear = 365 * 24
)

// Trade 是外部模拟引擎产出的一笔已平仓交易，只读消费。
type Trade struct {
	CloseTime  time.Time `json:"time"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Balance    float64   `json:"balance"`
	PnL        float64   `json:"pnl"`
	Commission float64   `json:"commission"`
}

// EquitySample 是资金曲线上的一个采样点。
type EquitySample struct {
	Time    time.Time `json:"time"`
	Balance float64   `json:"balance"`
}

// Input 是一次指标计算的输入：有序收益序列、可选的资金曲线、交易列表。
type Input struct {
	Returns []float64
	Equity  []float64 // 为空时由 Returns 复原
	Trades  []Trade
}

// Result 是一次指标计算的结果值对象，每次调用重新计算，不原地修改。
type Result struct {
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	WinRate              float64 `json:"win_rate"`
	TotalCommission      float64 `json:"total_commission"`
	TradeCount           int     `json:"trade_count"`
	PeriodsPerYear       float64 `json:"periods_per_year"`
}

// Engine 计算年化交易绩效指标。纯计算、无共享状态，可被任意并发调用。
type Engine struct {
	log *logger.Logger
}

func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{log: log}
}

// Compute 计算全部指标。年化因子取实际观测到的交易频率：
// 每 N 根 K 线交易一次的策略，其有效周期不是 K 线周期本身。
func (e *Engine) Compute(iv market.Interval, in Input) Result {
	periods := tradePeriodsPerYear(iv, in.Trades)
	annRet, annVol, sharpe := Annualize(in.Returns, periods)
	if math.Abs(sharpe) > sharpeSaneBand || math.IsNaN(sharpe) || math.IsInf(sharpe, 0) {
		// 计算异常反映数据特征而非程序缺陷：记录后重置，不上抛
		e.log.Warnf("[metrics] 夏普比率 %.4f 超出合理区间 ±%.0f，按 0 处理", sharpe, sharpeSaneBand)
		sharpe = 0
	}
	equity := in.Equity
	if len(equity) == 0 {
		equity = equityFromReturns(in.Returns)
	}
	return Result{
		AnnualizedReturn:     annRet,
		AnnualizedVolatility: annVol,
		SharpeRatio:          sharpe,
		MaxDrawdown:          MaxDrawdown(equity),
		WinRate:              winRate(in.Trades),
		TotalCommission:      totalCommission(in.Trades),
		TradeCount:           len(in.Trades),
		PeriodsPerYear:       periods,
	}
}

// Annualize 按给定年化因子返回 (年化收益, 年化波动, 夏普比率)。
// 样本不足两个或标准差为零时夏普比率定义为 0，不产生 NaN/Inf。
func Annualize(returns []float64, periodsPerYear float64) (annRet, annVol, sharpe float64) {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0, 0, 0
	}
	mean := stat.Mean(returns, nil)
	annRet = mean * periodsPerYear
	if len(returns) < 2 {
		return annRet, 0, 0
	}
	stdev := stat.StdDev(returns, nil) // 样本标准差，除数 n-1
	annVol = stdev * math.Sqrt(periodsPerYear)
	if annVol <= volatilityEpsilon {
		return annRet, annVol, 0
	}
	return annRet, annVol, annRet / annVol
}

// tradePeriodsPerYear 由交易收盘时间推导实际交易频率的年化因子；
// 不足两笔交易或时间跨度为零时退回 K 线周期本身的年化因子。
func tradePeriodsPerYear(iv market.Interval, trades []Trade) float64 {
	if len(trades) >= 2 {
		span := trades[len(trades)-1].CloseTime.Sub(trades[0].CloseTime)
		if span > 0 {
			years := float64(span) / float64(time.Duration(hoursPerYear)*time.Hour)
			return float64(len(trades)-1) / years
		}
	}
	return iv.PeriodsPerYear()
}

// MaxDrawdown 沿资金曲线单向走一遍，维护运行峰值，
// 返回最大峰谷回撤（非负比例）。
func MaxDrawdown(equity []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// ReturnsFromEquity 由相邻资金曲线采样推导每期收益。
func ReturnsFromEquity(samples []EquitySample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1].Balance
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (samples[i].Balance-prev)/prev)
	}
	return out
}

func equityFromReturns(returns []float64) []float64 {
	out := make([]float64, 0, len(returns)+1)
	v := 1.0
	out = append(out, v)
	for _, r := range returns {
		v *= 1 + r
		out = append(out, v)
	}
	return out
}

func winRate(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// totalCommission 用 decimal 逐笔累加，避免长序列上的浮点漂移。
func totalCommission(trades []Trade) float64 {
	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(decimal.NewFromFloat(t.Commission))
	}
	f, _ := sum.Float64()
	return f
}
