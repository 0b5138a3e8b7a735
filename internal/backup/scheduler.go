package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const schedulerCreator = "scheduler"

// Scheduler takes an "all" backup of every guild the bot is in on a cron schedule.
type Scheduler struct {
	service *Service
	guilds  func() []string
	logger  *zap.Logger
	cron    *cron.Cron
	timeout time.Duration
}

func NewScheduler(service *Service, guilds func() []string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		service: service,
		guilds:  guilds,
		logger:  logger,
		cron:    cron.New(),
		timeout: 5 * time.Minute,
	}
}

// Start registers the job and starts the cron runner. An empty schedule is a no-op.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := s.cron.AddJob(schedule, s); err != nil {
		return fmt.Errorf("schedule backups %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("backup schedule active", zap.String("schedule", schedule))
	return nil
}

// Stop halts the runner and waits for a running job.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Run implements cron.Job.
func (s *Scheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	label := AutoLabel(s.service.clock.Now())
	for _, guildID := range s.guilds() {
		if _, err := s.service.create(ctx, guildID, label, TypeAll, schedulerCreator, TriggerScheduled); err != nil {
			s.logger.Warn("scheduled backup failed", zap.String("guild_id", guildID), zap.String("label", label), zap.Error(err))
		}
	}
}
