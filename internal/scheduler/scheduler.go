package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// TaskHandler executes a scheduled task
type TaskHandler func(ctx context.Context, schedule *Schedule) error

// Config contains scheduler configuration
type Config struct {
	CheckInterval time.Duration // How often to check for due schedules
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Minute,
	}
}

// Scheduler manages scheduled task execution
type Scheduler struct {
	logger        *slog.Logger
	checkInterval time.Duration
	now           func() time.Time

	mu        sync.Mutex
	handlers  map[TaskType]TaskHandler
	schedules map[string]*Schedule
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a new scheduler
func New(logger *slog.Logger, config Config) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Scheduler{
		logger:        logger,
		checkInterval: config.CheckInterval,
		now:           config.Now,
		handlers:      make(map[TaskType]TaskHandler),
		schedules:     make(map[string]*Schedule),
	}
}

// RegisterHandler registers a handler for a task type
func (s *Scheduler) RegisterHandler(taskType TaskType, handler TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = handler
	s.logger.Debug("registered scheduler handler", "taskType", taskType)
}

// Add parses expression and registers a schedule for taskType.
func (s *Scheduler) Add(taskType TaskType, expression string) (*Schedule, error) {
	schedule, err := NewSchedule(taskType, expression, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.schedules[schedule.ID] = schedule
	s.mu.Unlock()

	s.logger.Info("schedule added",
		"scheduleId", schedule.ID,
		"taskType", taskType,
		"expression", expression,
		"nextIn", FormatDuration(schedule.NextRun.Sub(s.now())),
	)
	return schedule, nil
}

// Get returns a copy of the schedule with id.
func (s *Scheduler) Get(id string) (Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return Schedule{}, false
	}
	return *schedule, true
}

// List returns copies of all schedules ordered by next run.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, *schedule)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}

// Start runs the scheduler loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "checkInterval", s.checkInterval.String())

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop cancels the loop and waits up to timeout for a running task.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler shutdown timed out")
	}
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunDue executes every schedule that is due and returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*Schedule
	for _, schedule := range s.schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(due[j].NextRun) })
	for _, schedule := range due {
		if ctx.Err() != nil {
			break
		}
		s.execute(ctx, schedule)
	}
	return len(due)
}

// RunNow executes a schedule immediately, whether or not it is due, and
// advances its NextRun like a regular run.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.Lock()
	schedule, ok := s.schedules[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}

	return s.execute(ctx, schedule)
}

// execute runs one schedule and records the outcome on it.
func (s *Scheduler) execute(ctx context.Context, schedule *Schedule) error {
	s.mu.Lock()
	handler, ok := s.handlers[schedule.TaskType]
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("no handler for task type",
			"scheduleId", schedule.ID,
			"taskType", schedule.TaskType,
		)
		return fmt.Errorf("no handler for task type %s", schedule.TaskType)
	}

	s.logger.Debug("executing scheduled task",
		"scheduleId", schedule.ID,
		"taskType", schedule.TaskType,
	)

	start := s.now()
	err := handler(ctx, schedule)
	duration := s.now().Sub(start)

	if err != nil {
		s.logger.Error("scheduled task failed",
			"scheduleId", schedule.ID,
			"taskType", schedule.TaskType,
			"error", err,
			"duration", duration.String(),
		)
	} else {
		s.logger.Info("scheduled task completed",
			"scheduleId", schedule.ID,
			"taskType", schedule.TaskType,
			"duration", duration.String(),
		)
	}

	s.mu.Lock()
	markErr := schedule.MarkRun(s.now(), duration, err)
	s.mu.Unlock()
	if markErr != nil {
		s.logger.Error("failed to calculate next run time",
			"scheduleId", schedule.ID,
			"error", markErr,
		)
	}
	return err
}
