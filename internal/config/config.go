package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config 在进程启动时构造一次，之后按值传入各组件构造函数，
// 任何组件都不读取环境态的全局配置。
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Data   DataConfig   `mapstructure:"data"`
	Source SourceConfig `mapstructure:"source"`
	Sync   SyncConfig   `mapstructure:"sync"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type DataConfig struct {
	Path string `mapstructure:"path"` // sqlite 数据文件
}

type SourceConfig struct {
	Exchange        string `mapstructure:"exchange"`
	BaseURL         string `mapstructure:"base_url"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
	MaxBatch        int    `mapstructure:"max_batch"`
}

type SyncConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	LookbackDays  int `mapstructure:"lookback_days"`
}

// Default 返回全部取默认值的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load 读取 YAML 配置文件并补全默认值；path 为空时直接返回默认配置。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败 (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Data.Path == "" {
		c.Data.Path = "data/ksync.db"
	}
	if c.Source.Exchange == "" {
		c.Source.Exchange = "binance"
	}
	if c.Source.RateLimitPerMin <= 0 {
		c.Source.RateLimitPerMin = 600
	}
	if c.Source.MaxBatch <= 0 {
		c.Source.MaxBatch = 1000
	}
	if c.Sync.MaxConcurrent <= 0 {
		c.Sync.MaxConcurrent = 2
	}
	if c.Sync.LookbackDays <= 0 {
		c.Sync.LookbackDays = 730
	}
}

func (c *Config) validate() error {
	if c.Source.MaxBatch > 1000 {
		return fmt.Errorf("source.max_batch 不能超过 1000（上游单次响应上限）")
	}
	if c.Sync.MaxConcurrent > 64 {
		return fmt.Errorf("sync.max_concurrent 过大: %d", c.Sync.MaxConcurrent)
	}
	switch strings.ToLower(c.Source.Exchange) {
	case "binance":
	default:
		return fmt.Errorf("未知数据源: %s", c.Source.Exchange)
	}
	return nil
}
