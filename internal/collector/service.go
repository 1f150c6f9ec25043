package collector

import (
	"context"
	"sync"
	"time"

	"ksync/internal/logger"
	"ksync/internal/market"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// 任务状态机：pending → resolving → fetching → done/failed。
const (
	JobStatusPending   = "pending"
	JobStatusResolving = "resolving"
	JobStatusFetching  = "fetching"
	JobStatusDone      = "done"
	JobStatusFailed    = "failed"
	JobStatusSkipped   = "skipped"
)

// Store 是同步引擎依赖的持久化端口。
// 实现需保证 (symbol, interval, open_time) 唯一，重复插入不产生重复行；
// 不同序列可并发写入。
type Store interface {
	Latest(ctx context.Context, key market.SeriesKey) (*market.Candle, error)
	BatchInsert(ctx context.Context, key market.SeriesKey, candles []market.Candle) (int, error)
}

// SyncRequest 描述一个 (序列, 请求区间) 同步任务。
type SyncRequest struct {
	Key   market.SeriesKey
	Start time.Time
	End   time.Time
}

// Job 记录一个同步任务的执行结果。
type Job struct {
	ID         string
	Key        market.SeriesKey
	Start      time.Time
	End        time.Time
	Status     string
	Inserted   int
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary 汇总一次批量同步的分序列结果。
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Inserted  int
	Jobs      []Job
}

func (s Summary) OK() bool { return s.Failed == 0 }

// Service 调度多个序列的同步任务：W 个 worker 消费任务队列，
// 同一序列在途去重，单个任务内的远端请求串行。
type Service struct {
	store   Store
	fetcher *Fetcher
	workers int
	log     *logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

func NewService(store Store, fetcher *Fetcher, workers int, log *logger.Logger) *Service {
	if workers <= 0 {
		workers = 2
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		store:    store,
		fetcher:  fetcher,
		workers:  workers,
		log:      log,
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

// Run 并发执行全部任务并等待完成。单个任务失败不影响其余任务，
// 失败与否反映在 Summary 里，由调用方决定退出码。
func (s *Service) Run(ctx context.Context, reqs []SyncRequest) Summary {
	jobs := make([]Job, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, req := range reqs {
		jobs[i] = Job{
			ID:     uuid.NewString(),
			Key:    req.Key,
			Start:  req.Start,
			End:    req.End,
			Status: JobStatusPending,
		}
		job := &jobs[i]
		g.Go(func() error {
			s.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	var sum Summary
	sum.Jobs = jobs
	for _, j := range jobs {
		sum.Inserted += j.Inserted
		switch j.Status {
		case JobStatusDone:
			sum.Succeeded++
		case JobStatusSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	return sum
}

func (s *Service) runJob(ctx context.Context, job *Job) {
	job.StartedAt = s.now()
	defer func() { job.FinishedAt = s.now() }()

	// 同一序列不允许两个同步任务并发执行（游标无跨任务协调）
	if !s.acquire(job.Key) {
		job.Status = JobStatusSkipped
		job.Message = "同一序列已有同步任务在执行"
		s.log.Warnf("[collector] 任务 %s %s 跳过：%s", job.ID, job.Key, job.Message)
		return
	}
	defer s.release(job.Key)

	job.Status = JobStatusResolving
	latest, err := s.store.Latest(ctx, job.Key)
	if err != nil {
		job.Status = JobStatusFailed
		job.Message = "读取游标失败: " + err.Error()
		s.log.Errorf("[collector] 任务 %s %s %s", job.ID, job.Key, job.Message)
		return
	}
	var cursor *time.Time
	if latest != nil {
		t := latest.OpenTime
		cursor = &t
	}
	gaps := ResolveGaps(job.Key.Interval, cursor, job.Start, job.End, s.now())
	if len(gaps) == 0 {
		job.Status = JobStatusDone
		job.Message = "数据已是最新，无需拉取"
		s.log.Infof("[collector] 任务 %s %s：%s", job.ID, job.Key, job.Message)
		return
	}

	job.Status = JobStatusFetching
	s.log.Infof("[collector] 任务 %s %s 开始，缺口=%d 首段=%s", job.ID, job.Key, len(gaps), gaps[0])
	for _, gap := range gaps {
		n, err := s.fetcher.FetchRange(ctx, job.Key, gap, func(ctx context.Context, batch []market.Candle) (int, error) {
			// 先写后进：批次落库成功后游标才会越过它
			return s.store.BatchInsert(ctx, job.Key, batch)
		})
		job.Inserted += n
		if err != nil {
			// 游标只反映已落库的部分，下次运行会重新解析剩余缺口
			job.Status = JobStatusFailed
			job.Message = err.Error()
			s.log.Errorf("[collector] 任务 %s %s 失败: %v", job.ID, job.Key, err)
			return
		}
	}
	job.Status = JobStatusDone
	s.log.Infof("[collector] 任务 %s %s 完成，插入=%d", job.ID, job.Key, job.Inserted)
}

func (s *Service) acquire(key market.SeriesKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key.String()] {
		return false
	}
	s.inflight[key.String()] = true
	return true
}

func (s *Service) release(key market.SeriesKey) {
	s.mu.Lock()
	delete(s.inflight, key.String())
	s.mu.Unlock()
}
