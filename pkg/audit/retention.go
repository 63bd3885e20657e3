package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/itellico/mono-access/pkg/observability"
)

// RetentionSweeper deletes audit events past the retention window on a
// cron schedule.
type RetentionSweeper struct {
	store  Store
	policy RetentionPolicy
	logger *observability.Logger
	cron   *cron.Cron
}

// NewRetentionSweeper creates a sweeper for the given store and policy.
func NewRetentionSweeper(store Store, policy RetentionPolicy, logger *observability.Logger) *RetentionSweeper {
	if policy.RetentionDays <= 0 {
		policy = DefaultRetentionPolicy()
	}
	if policy.Schedule == "" {
		policy.Schedule = DefaultRetentionPolicy().Schedule
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RetentionSweeper{
		store:  store,
		policy: policy,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules the sweep and begins running it.
func (s *RetentionSweeper) Start() error {
	_, err := s.cron.AddFunc(s.policy.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule audit retention sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Sweep runs one retention pass immediately.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	deleted, err := s.store.Cleanup(ctx, s.policy)
	if err != nil {
		s.logger.WithError(err).Error("audit retention sweep failed")
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"deleted":        deleted,
		"retention_days": s.policy.RetentionDays,
	}).Info("audit retention sweep completed")
}

// Stop stops the scheduler, waiting for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	<-s.cron.Stop().Done()
}
