package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ksync/internal/backtest"
	"ksync/internal/collector"
	"ksync/internal/config"
	"ksync/internal/logger"
	"ksync/internal/market"
	"ksync/internal/metrics"
	"ksync/internal/store"
)

const dateLayout = "2006-01-02"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	switch args[0] {
	case "sync":
		return runSync(args[1:])
	case "metrics":
		return runMetrics(args[1:])
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "未知子命令: %s\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `用法:
  ksync sync    -symbol BTCUSDT[,ETHUSDT] [-interval 1h[,4h]] [-start YYYY-MM-DD] [-end YYYY-MM-DD] [-concurrency N] [-config path]
  ksync metrics -input result.json [-symbol BTCUSDT] [-interval 1h] [-config path]
`)
}

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	cfgPath := fs.String("config", os.Getenv("KSYNC_CONFIG"), "配置文件路径")
	symbolsArg := fs.String("symbol", "", "交易对，逗号分隔，如 BTCUSDT,ETHUSDT")
	intervalsArg := fs.String("interval", "1h", "时间间隔，逗号分隔，如 1h,4h,1d")
	startArg := fs.String("start", "", "开始日期 YYYY-MM-DD（默认按 lookback_days 回看）")
	endArg := fs.String("end", "", "结束日期 YYYY-MM-DD（默认当前时间）")
	concurrency := fs.Int("concurrency", 0, "并发 worker 数（默认取配置）")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*symbolsArg) == "" {
		fmt.Fprintln(os.Stderr, "缺少 -symbol")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}
	log, logFile, err := setupLogger(cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	now := time.Now().UTC()
	start, end, err := parseDateRange(*startArg, *endArg, now, cfg.Sync.LookbackDays)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	var intervals []market.Interval
	for _, raw := range splitList(*intervalsArg) {
		iv, err := market.ParseInterval(raw)
		if err != nil {
			// 非法周期串对任务是致命的，不重试
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		intervals = append(intervals, iv)
	}
	if len(intervals) == 0 {
		fmt.Fprintln(os.Stderr, "缺少 -interval")
		return 2
	}

	st, err := store.NewStore(cfg.Data.Path)
	if err != nil {
		log.Errorf("打开数据库失败: %v", err)
		return 1
	}
	defer st.Close()

	source := collector.NewBinanceSource(cfg.Source.BaseURL)
	fetcher := collector.NewFetcher(source, cfg.Source.RateLimitPerMin, cfg.Source.MaxBatch, log)
	workers := cfg.Sync.MaxConcurrent
	if *concurrency > 0 {
		workers = *concurrency
	}
	svc := collector.NewService(st, fetcher, workers, log)

	var reqs []collector.SyncRequest
	for _, symbol := range splitList(*symbolsArg) {
		for _, iv := range intervals {
			reqs = append(reqs, collector.SyncRequest{
				Key:   market.NewSeriesKey(symbol, iv),
				Start: start,
				End:   end,
			})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("开始同步：序列=%d 区间=[%s, %s) 并发=%d", len(reqs), start.Format(dateLayout), end.Format(dateLayout), workers)
	sum := svc.Run(ctx, reqs)
	for _, job := range sum.Jobs {
		if job.Status == collector.JobStatusDone {
			log.Infof("序列 %s：完成，插入 %d 条", job.Key, job.Inserted)
		} else {
			log.Errorf("序列 %s：%s（%s）", job.Key, job.Status, job.Message)
		}
	}
	log.Infof("同步结束：成功=%d 失败=%d 跳过=%d 共插入=%d", sum.Succeeded, sum.Failed, sum.Skipped, sum.Inserted)
	if !sum.OK() {
		return 1
	}
	return 0
}

func runMetrics(args []string) int {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	cfgPath := fs.String("config", os.Getenv("KSYNC_CONFIG"), "配置文件路径")
	input := fs.String("input", "", "模拟输出 JSON 文件")
	symbolArg := fs.String("symbol", "", "交易对（默认取文件内 currency）")
	intervalArg := fs.String("interval", "", "时间间隔（默认取文件内 time_interval）")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*input) == "" {
		fmt.Fprintln(os.Stderr, "缺少 -input")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}
	log, logFile, err := setupLogger(cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	sim, err := backtest.LoadSimulationFile(*input)
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	symbol := *symbolArg
	if symbol == "" {
		symbol = sim.Symbol
	}
	intervalSpec := *intervalArg
	if intervalSpec == "" {
		intervalSpec = sim.Interval
	}
	iv, err := market.ParseInterval(intervalSpec)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	key := market.NewSeriesKey(symbol, iv)

	engine := metrics.NewEngine(log)
	result := engine.Compute(iv, sim.MetricsInput())

	st, err := store.NewStore(cfg.Data.Path)
	if err != nil {
		log.Errorf("打开数据库失败: %v", err)
		return 1
	}
	defer st.Close()
	if err := st.SaveResult(context.Background(), key, result); err != nil {
		log.Errorf("%v", err)
		return 1
	}

	payload := struct {
		Currency     string `json:"currency"`
		TimeInterval string `json:"time_interval"`
		metrics.Result
	}{Currency: key.Symbol, TimeInterval: iv.String(), Result: result}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Errorf("序列化结果失败: %v", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func setupLogger(app config.AppConfig) (*logger.Logger, *os.File, error) {
	path := strings.TrimSpace(app.LogPath)
	if path == "" {
		return logger.New(os.Stdout, app.LogLevel), nil, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return logger.New(io.MultiWriter(os.Stdout, file), app.LogLevel), file, nil
}

func parseDateRange(startArg, endArg string, now time.Time, lookbackDays int) (time.Time, time.Time, error) {
	start := now.AddDate(0, 0, -lookbackDays)
	end := now
	if startArg != "" {
		t, err := time.ParseInLocation(dateLayout, startArg, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("开始日期格式不正确（YYYY-MM-DD）: %s", startArg)
		}
		start = t
	}
	if endArg != "" {
		t, err := time.ParseInLocation(dateLayout, endArg, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("结束日期格式不正确（YYYY-MM-DD）: %s", endArg)
		}
		end = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("开始日期必须早于结束日期")
	}
	return start, end, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
