package backtest

import (
	"fmt"
	"os"
	"time"

	"ksync/internal/metrics"

	"github.com/tidwall/gjson"
)

// SimulationOutput 是外部模拟引擎的一次运行输出：
// 交易列表 + 资金曲线采样，时间戳单调递增。
type SimulationOutput struct {
	Symbol      string
	Interval    string
	InitBalance float64
	Trades      []metrics.Trade
	Equity      []metrics.EquitySample
}

const timeLayout = "2006-01-02 15:04:05"

// LoadSimulationFile 读取模拟输出 JSON 文件。
func LoadSimulationFile(path string) (*SimulationOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模拟输出失败: %w", err)
	}
	return ParseSimulationOutput(data)
}

// ParseSimulationOutput 解析模拟输出 JSON。格式与模拟引擎的结果一致：
//
//	{"currency":"BTCUSDT","time_interval":"1h","init_balance":10000,
//	 "trades":[{"time":"2023-06-15 22:00:00","balance":10025.75,"price":25389.97,
//	            "size":0.37,"pnl":31.2,"commission":9.6}, ...],
//	 "equity_curve":[{"time":"...","balance":...}, ...]}
func ParseSimulationOutput(data []byte) (*SimulationOutput, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("模拟输出不是合法 JSON")
	}
	root := gjson.ParseBytes(data)
	out := &SimulationOutput{
		Symbol:      root.Get("currency").String(),
		Interval:    root.Get("time_interval").String(),
		InitBalance: root.Get("init_balance").Float(),
	}
	var parseErr error
	root.Get("trades").ForEach(func(_, item gjson.Result) bool {
		ts, err := parseTime(item.Get("time").String())
		if err != nil {
			parseErr = err
			return false
		}
		out.Trades = append(out.Trades, metrics.Trade{
			CloseTime:  ts,
			Price:      item.Get("price").Float(),
			Size:       item.Get("size").Float(),
			Balance:    item.Get("balance").Float(),
			PnL:        item.Get("pnl").Float(),
			Commission: item.Get("commission").Float(),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	root.Get("equity_curve").ForEach(func(_, item gjson.Result) bool {
		ts, err := parseTime(item.Get("time").String())
		if err != nil {
			parseErr = err
			return false
		}
		out.Equity = append(out.Equity, metrics.EquitySample{
			Time:    ts,
			Balance: item.Get("balance").Float(),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// MetricsInput 把模拟输出整理成指标计算的输入。
// 每期收益优先按逐笔交易的余额变化推导（首期基于初始资金），
// 没有交易时退回资金曲线相邻采样。
func (o *SimulationOutput) MetricsInput() metrics.Input {
	in := metrics.Input{Trades: o.Trades}
	if len(o.Trades) > 0 {
		prev := o.InitBalance
		for _, t := range o.Trades {
			if prev != 0 {
				in.Returns = append(in.Returns, (t.Balance-prev)/prev)
			}
			prev = t.Balance
		}
	} else {
		in.Returns = metrics.ReturnsFromEquity(o.Equity)
	}
	for _, s := range o.Equity {
		in.Equity = append(in.Equity, s.Balance)
	}
	if len(in.Equity) == 0 {
		if o.InitBalance > 0 {
			in.Equity = append(in.Equity, o.InitBalance)
		}
		for _, t := range o.Trades {
			in.Equity = append(in.Equity, t.Balance)
		}
	}
	return in
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("时间字段为空")
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("非法时间格式 %q: %w", s, err)
	}
	return ts, nil
}
