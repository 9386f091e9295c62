package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/sponsorbot/internal/bot/tasks"
	"github.com/edgard/sponsorbot/internal/config"
	"github.com/edgard/sponsorbot/internal/logger"
)

// Scheduler manages scheduled tasks using the gocron library.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a new scheduler instance using gocron. Extra gocron
// options (a fake clock in tests, for instance) are appended to the defaults.
func NewScheduler(log *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")

	opts = append([]gocron.SchedulerOption{gocron.WithLogger(logger.NewGocronLogger(log))}, opts...)
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    log,
		cfg:       cfg,
		taskMap:   taskMap,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start schedules and starts all enabled tasks based on the configuration.
// A task runs on its interval when one is set, otherwise on its cron schedule
// (with seconds). Runs of the same task never overlap.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.logger.Debug("Configuring scheduler jobs...")

	if s.cfg == nil || len(s.cfg.Tasks) == 0 {
		s.logger.Warn("No scheduler tasks configured.")
		s.scheduler.Start()
		s.running = true
		return nil
	}

	scheduledCount := 0
	for taskName, taskConfig := range s.cfg.Tasks {
		if !taskConfig.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("Scheduled task configured but not found in registry, skipping", "task_name", taskName)
			continue
		}

		definition, desc, ok := jobDefinition(taskConfig)
		if !ok {
			s.logger.Warn("Scheduled task enabled but has neither interval nor schedule, skipping", "task_name", taskName)
			continue
		}

		jobOpts := []gocron.JobOption{
			gocron.WithName(taskName),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if taskConfig.RunOnStart {
			jobOpts = append(jobOpts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}

		_, err := s.scheduler.NewJob(
			definition,
			gocron.NewTask(s.runTask, s.ctx, taskName, taskFunc),
			jobOpts...,
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", taskName, "schedule", desc, "error", err)
			continue
		}

		s.logger.Info("Scheduled task", "task_name", taskName, "schedule", desc, "run_on_start", taskConfig.RunOnStart)
		scheduledCount++
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler initialized and started", "tasks_scheduled", scheduledCount)

	return nil
}

func jobDefinition(cfg config.TaskConfig) (gocron.JobDefinition, string, bool) {
	switch {
	case cfg.Interval > 0:
		return gocron.DurationJob(cfg.Interval), "every " + cfg.Interval.String(), true
	case cfg.Schedule != "":
		return gocron.CronJob(cfg.Schedule, true), cfg.Schedule, true
	default:
		return nil, "", false
	}
}

// runTask wraps a task with logging and reports failures to Sentry.
func (s *Scheduler) runTask(ctx context.Context, name string, task tasks.ScheduledTaskFunc) {
	s.logger.Debug("Running scheduled task", "task_name", name)
	startTime := time.Now()

	if err := task(ctx); err != nil {
		s.logger.Error("Scheduled task failed", "task_name", name, "error", err)
		hub := sentry.CurrentHub().Clone()
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("task", name)
		})
		hub.CaptureException(err)
	}

	s.logger.Debug("Finished scheduled task", "task_name", name, "duration", time.Since(startTime))
}

// JobCount returns the number of scheduled jobs.
func (s *Scheduler) JobCount() int {
	return len(s.scheduler.Jobs())
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	s.cancel()
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}
