package store

import (
	"gorm.io/datatypes"
)

// KlineModel 对应 klines 表，(symbol, time_interval, open_time) 唯一。
type KlineModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol        string         `gorm:"column:symbol;uniqueIndex:idx_kline_series_time,priority:1"`
	Interval      string         `gorm:"column:time_interval;uniqueIndex:idx_kline_series_time,priority:2"`
	OpenTime      int64          `gorm:"column:open_time;uniqueIndex:idx_kline_series_time,priority:3"` // Unix ms
	Open          float64        `gorm:"column:open"`
	High          float64        `gorm:"column:high"`
	Low           float64        `gorm:"column:low"`
	Close         float64        `gorm:"column:close"`
	Volume        float64        `gorm:"column:volume"`
	Extra         datatypes.JSON `gorm:"column:extra;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (KlineModel) TableName() string { return "klines" }

// MetricsResultModel 对应 metrics_results 表，每次计算追加一行。
type MetricsResultModel struct {
	ID                   int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol               string  `gorm:"column:symbol;index:idx_metrics_series"`
	Interval             string  `gorm:"column:time_interval;index:idx_metrics_series"`
	AnnualizedReturn     float64 `gorm:"column:annualized_return"`
	AnnualizedVolatility float64 `gorm:"column:annualized_volatility"`
	SharpeRatio          float64 `gorm:"column:sharpe_ratio"`
	MaxDrawdown          float64 `gorm:"column:max_drawdown"`
	WinRate              float64 `gorm:"column:win_rate"`
	TotalCommission      float64 `gorm:"column:total_commission"`
	TradeCount           int     `gorm:"column:trade_count"`
	PeriodsPerYear       float64 `gorm:"column:periods_per_year"`
	CreatedAtUnix        int64   `gorm:"column:created_at"`
}

func (MetricsResultModel) TableName() string { return "metrics_results" }
