package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Publisher is the publish cycle the scheduler triggers.
type Publisher interface {
	PublishAndNotify(ctx context.Context) (domain.NotificationResult, error)
}

// Scheduler runs publish cycles on a cron schedule.
type Scheduler struct {
	publisher Publisher
	cron      *cron.Cron
	spec      string
	logger    *zap.Logger
}

func NewScheduler(publisher Publisher, spec string, logger *zap.Logger) (*Scheduler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("cron spec is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	return &Scheduler{
		publisher: publisher,
		cron:      cron.New(),
		spec:      spec,
		logger:    logger,
	}, nil
}

// Start schedules publish cycles and blocks until ctx is done. Running cycles finish before it returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule auto-publish: %w", err)
	}

	s.logger.Info("auto-publish scheduler started", zap.String("spec", s.spec))
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("auto-publish scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := s.publisher.PublishAndNotify(ctx)
	if err != nil {
		s.logger.Warn("scheduled publish did not run", zap.Error(err))
		return
	}
	s.logger.Info("scheduled publish finished",
		zap.Int("resultsPublished", result.ResultsPublished),
		zap.Int("studentsNotified", result.StudentsNotified),
		zap.Int("errors", len(result.Errors)),
	)
}
