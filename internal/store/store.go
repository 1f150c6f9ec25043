package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ksync/internal/market"
	"ksync/internal/metrics"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store 基于 gorm + sqlite 实现同步引擎的持久化端口。
// (symbol, time_interval, open_time) 上的唯一约束保证重复插入不产生重复行，
// 不同序列可并发写入。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	if err := db.AutoMigrate(&KlineModel{}, &MetricsResultModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Latest 返回序列已入库的最新一根 K 线；序列为空时返回 (nil, nil)。
func (s *Store) Latest(ctx context.Context, key market.SeriesKey) (*market.Candle, error) {
	var m KlineModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND time_interval = ?", key.Symbol, key.Interval.String()).
		Order("open_time DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取最新 K 线失败: %w", err)
	}
	c := toCandle(m)
	return &c, nil
}

// BatchInsert 批量写入 K 线，已存在的 (symbol, interval, open_time) 静默跳过，
// 返回实际新插入的行数。
func (s *Store) BatchInsert(ctx context.Context, key market.SeriesKey, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	now := time.Now().UnixMilli()
	models := make([]KlineModel, 0, len(candles))
	for _, c := range candles {
		models = append(models, KlineModel{
			Symbol:        key.Symbol,
			Interval:      key.Interval.String(),
			OpenTime:      c.OpenTime.UnixMilli(),
			Open:          c.Open,
			High:          c.High,
			Low:           c.Low,
			Close:         c.Close,
			Volume:        c.Volume,
			Extra:         []byte(c.Extra),
			CreatedAtUnix: now,
		})
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "time_interval"}, {Name: "open_time"}},
		DoNothing: true,
	}).Create(&models)
	if tx.Error != nil {
		return 0, fmt.Errorf("写入 K 线失败: %w", tx.Error)
	}
	return int(tx.RowsAffected), nil
}

// Candles 返回 [start, end) 内的 K 线，按 open_time 升序。
func (s *Store) Candles(ctx context.Context, key market.SeriesKey, start, end time.Time) ([]market.Candle, error) {
	var models []KlineModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND time_interval = ? AND open_time >= ? AND open_time < ?",
			key.Symbol, key.Interval.String(), start.UnixMilli(), end.UnixMilli()).
		Order("open_time ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("读取 K 线失败: %w", err)
	}
	out := make([]market.Candle, 0, len(models))
	for _, m := range models {
		out = append(out, toCandle(m))
	}
	return out, nil
}

// Count 返回序列已入库的 K 线总数。
func (s *Store) Count(ctx context.Context, key market.SeriesKey) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&KlineModel{}).
		Where("symbol = ? AND time_interval = ?", key.Symbol, key.Interval.String()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计 K 线失败: %w", err)
	}
	return n, nil
}

// SaveResult 追加一条指标计算结果。
func (s *Store) SaveResult(ctx context.Context, key market.SeriesKey, r metrics.Result) error {
	m := MetricsResultModel{
		Symbol:               key.Symbol,
		Interval:             key.Interval.String(),
		AnnualizedReturn:     r.AnnualizedReturn,
		AnnualizedVolatility: r.AnnualizedVolatility,
		SharpeRatio:          r.SharpeRatio,
		MaxDrawdown:          r.MaxDrawdown,
		WinRate:              r.WinRate,
		TotalCommission:      r.TotalCommission,
		TradeCount:           r.TradeCount,
		PeriodsPerYear:       r.PeriodsPerYear,
		CreatedAtUnix:        time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("写入指标结果失败: %w", err)
	}
	return nil
}

func toCandle(m KlineModel) market.Candle {
	return market.Candle{
		OpenTime: time.UnixMilli(m.OpenTime).UTC(),
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
		Extra:    []byte(m.Extra),
	}
}
