package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"content-pool/internal/logging"
)

// JobFunc 定时任务函数
type JobFunc func(ctx context.Context) error

type task struct {
	name    string
	spec    string
	run     JobFunc
	entryID cron.EntryID
	running int32
	lastRun time.Time
	lastErr error
}

// TaskStatus 任务状态
type TaskStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next"`
	LastRun time.Time `json:"last_run"`
	LastErr string    `json:"last_error,omitempty"`
}

// Scheduler 定时任务调度器
type Scheduler struct {
	cron       *cron.Cron
	tasks      map[string]*task
	tasksMutex sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *logging.Logger
}

// NewScheduler 创建新的定时任务调度器
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	ctx, cancel := context.WithCancel(context.Background())

	// 创建cron实例，支持秒级精度
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:   c,
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// AddJob 注册定时任务，spec 为空表示不调度（仍可通过 RunNow 手动执行）
func (s *Scheduler) AddJob(name, spec string, run JobFunc) error {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	t := &task{name: name, spec: spec, run: run}
	if spec != "" {
		entryID, err := s.cron.AddFunc(spec, func() {
			if err := s.execute(t); err != nil {
				s.logger.Error("Job %s failed: %v", name, err)
			}
		})
		if err != nil {
			return fmt.Errorf("add job %s with schedule %q: %w", name, spec, err)
		}
		t.entryID = entryID
		s.logger.Info("Scheduled job %s with schedule: %s", name, spec)
	}
	s.tasks[name] = t
	return nil
}

// Start 启动定时任务调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// RunNow 立即同步执行一个任务
func (s *Scheduler) RunNow(name string) error {
	s.tasksMutex.RLock()
	t, exists := s.tasks[name]
	s.tasksMutex.RUnlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	return s.execute(t)
}

// execute 执行任务；同一任务上一次尚未结束时跳过
func (s *Scheduler) execute(t *task) (err error) {
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		s.logger.Warn("Job %s is still running, skipped", t.name)
		return nil
	}
	s.wg.Add(1)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", t.name, r)
		}
		s.tasksMutex.Lock()
		t.lastRun = start
		t.lastErr = err
		s.tasksMutex.Unlock()
		atomic.StoreInt32(&t.running, 0)
		s.wg.Done()
	}()

	s.logger.Debug("Executing job %s", t.name)
	return t.run(s.ctx)
}

// GetTaskStatus 获取任务的下次执行时间
func (s *Scheduler) GetTaskStatus(name string) (bool, string) {
	s.tasksMutex.RLock()
	t, exists := s.tasks[name]
	s.tasksMutex.RUnlock()

	if !exists {
		return false, "not registered"
	}
	if t.spec == "" {
		return false, "not scheduled"
	}

	entry := s.cron.Entry(t.entryID)
	if entry.ID == 0 {
		return false, "not found"
	}
	if entry.Next.IsZero() {
		return true, "pending"
	}
	return true, entry.Next.Format("2006-01-02 15:04:05")
}

// ListTasks 列出所有任务
func (s *Scheduler) ListTasks() []TaskStatus {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		st := TaskStatus{Name: t.name, Spec: t.spec, LastRun: t.lastRun}
		if t.lastErr != nil {
			st.LastErr = t.lastErr.Error()
		}
		if t.spec != "" {
			st.Next = s.cron.Entry(t.entryID).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
