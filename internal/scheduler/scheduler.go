// Package scheduler runs the periodic maintenance tasks of the worker on
// cron expressions with seconds precision.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OFFIS-RIT/tagrel/pkg/logger"

	"github.com/robfig/cron/v3"
)

type TaskFunc func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	tasks   map[string]cron.EntryID
	timeout time.Duration
	mu      sync.RWMutex
	running bool
}

// New creates a scheduler whose task runs are cut off after timeout.
func New(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		tasks:   make(map[string]cron.EntryID),
		timeout: timeout,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	logger.Info("[Scheduler] Started", "tasks", len(s.tasks))
}

// Stop waits for running tasks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("[Scheduler] Stopped")
	case <-ctx.Done():
		logger.Warn("[Scheduler] Stop timed out")
	}
	s.running = false
}

// AddCronTask registers task under name, replacing an earlier task of the
// same name. Format: "second minute hour day-of-month month day-of-week".
func (s *Scheduler) AddCronTask(name, schedule string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runTask(name, task)
	})
	if err != nil {
		return err
	}
	s.tasks[name] = entryID
	logger.Info("[Scheduler] Added task", "name", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) runTask(name string, task TaskFunc) {
	start := time.Now()
	logger.Debug("[Scheduler] Running task", "name", name)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := task(ctx); err != nil {
		logger.Error("[Scheduler] Task failed", "name", name, "duration", time.Since(start), "err", err)
		return
	}
	logger.Debug("[Scheduler] Task completed", "name", name, "duration", time.Since(start))
}

type TaskInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run,omitempty"`
}

// Tasks lists registered tasks ordered by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]TaskInfo, 0, len(s.tasks))
	for name, entryID := range s.tasks {
		entry := s.cron.Entry(entryID)
		info = append(info, TaskInfo{Name: name, NextRun: entry.Next, PrevRun: entry.Prev})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Name < info[j].Name })
	return info
}
