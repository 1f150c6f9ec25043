package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const sampleOutput = `{
  "currency": "BTCUSDT",
  "time_interval": "1h",
  "init_balance": 10000,
  "trades": [
    {"time": "2023-06-15 22:00:00", "balance": 10100, "price": 25389.97, "size": 0.37, "pnl": 100, "commission": 9.6},
    {"time": "2023-06-16 08:00:00", "balance": 10049.5, "price": 25401.12, "size": 0.37, "pnl": -50.5, "commission": 9.4}
  ],
  "equity_curve": [
    {"time": "2023-06-15 21:00:00", "balance": 10000},
    {"time": "2023-06-15 22:00:00", "balance": 10100},
    {"time": "2023-06-16 08:00:00", "balance": 10049.5}
  ]
}`

func TestParseSimulationOutput(t *testing.T) {
	out, err := ParseSimulationOutput([]byte(sampleOutput))
	assert.NoError(t, err)
	assert.Equal(t, "BTCUSDT", out.Symbol)
	assert.Equal(t, "1h", out.Interval)
	assert.InDelta(t, 10000, out.InitBalance, 1e-12)

	assert.Len(t, out.Trades, 2)
	assert.Equal(t, time.Date(2023, 6, 15, 22, 0, 0, 0, time.UTC), out.Trades[0].CloseTime)
	assert.InDelta(t, 25389.97, out.Trades[0].Price, 1e-12)
	assert.InDelta(t, 100, out.Trades[0].PnL, 1e-12)
	assert.InDelta(t, 9.6, out.Trades[0].Commission, 1e-12)

	assert.Len(t, out.Equity, 3)
	assert.InDelta(t, 10049.5, out.Equity[2].Balance, 1e-12)
}

func TestParseSimulationOutputRFC3339(t *testing.T) {
	data := `{"currency":"ETHUSDT","time_interval":"4h","init_balance":5000,
	  "trades":[{"time":"2024-03-01T12:00:00Z","balance":5100,"pnl":100,"commission":1}]}`
	out, err := ParseSimulationOutput([]byte(data))
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), out.Trades[0].CloseTime)
}

func TestParseSimulationOutputErrors(t *testing.T) {
	_, err := ParseSimulationOutput([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseSimulationOutput([]byte(`{"trades":[{"time":"昨天","balance":1}]}`))
	assert.Error(t, err)

	_, err = ParseSimulationOutput([]byte(`{"trades":[{"balance":1}]}`))
	assert.Error(t, err, "缺时间字段的交易记录应报错")
}

func TestLoadSimulationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	assert.NoError(t, os.WriteFile(path, []byte(sampleOutput), 0o644))

	out, err := LoadSimulationFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "BTCUSDT", out.Symbol)

	_, err = LoadSimulationFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMetricsInputFromTrades(t *testing.T) {
	out, err := ParseSimulationOutput([]byte(sampleOutput))
	assert.NoError(t, err)

	in := out.MetricsInput()
	// 首期基于初始资金：10000→10100 为 1%，10100→10049.5 为 -0.5%
	assert.Len(t, in.Returns, 2)
	assert.InDelta(t, 0.01, in.Returns[0], 1e-12)
	assert.InDelta(t, -0.005, in.Returns[1], 1e-12)
	assert.Equal(t, []float64{10000, 10100, 10049.5}, in.Equity)
	assert.Len(t, in.Trades, 2)
}

func TestMetricsInputEquityFallback(t *testing.T) {
	// 无交易时收益退回资金曲线相邻采样
	data := `{"currency":"BTCUSDT","time_interval":"1h","init_balance":10000,
	  "equity_curve":[
	    {"time":"2023-06-15 21:00:00","balance":10000},
	    {"time":"2023-06-15 22:00:00","balance":10200}]}`
	out, err := ParseSimulationOutput([]byte(data))
	assert.NoError(t, err)

	in := out.MetricsInput()
	assert.Len(t, in.Returns, 1)
	assert.InDelta(t, 0.02, in.Returns[0], 1e-12)
	assert.Empty(t, in.Trades)
}

func TestMetricsInputEquityFromTrades(t *testing.T) {
	// 无资金曲线时由初始资金和逐笔余额拼出
	data := `{"currency":"BTCUSDT","time_interval":"1h","init_balance":10000,
	  "trades":[
	    {"time":"2023-06-15 22:00:00","balance":10100,"pnl":100,"commission":1},
	    {"time":"2023-06-16 08:00:00","balance":10049.5,"pnl":-50.5,"commission":1}]}`
	out, err := ParseSimulationOutput([]byte(data))
	assert.NoError(t, err)

	in := out.MetricsInput()
	assert.Equal(t, []float64{10000, 10100, 10049.5}, in.Equity)
}
