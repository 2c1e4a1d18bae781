package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/signly/signage-api/internal/models"
)

// maintenanceMetrics lets the scheduler report run outcomes without
// depending on a concrete metrics backend.
type maintenanceMetrics interface {
	MaintenanceRun(duration time.Duration, backfilled, archived int, err error)
}

// MaintenanceService backfills missing audit entries and archives expired
// announcements. Every step is a read-before-write against the history
// table, so repeated runs converge without duplicating entries. Concurrent
// triggers (the timer tick and the pre-read hook) collapse into one
// in-flight run via singleflight.
type MaintenanceService struct {
	repo      announcementRepository
	ledger    historyLedger
	publisher eventPublisher
	metrics   maintenanceMetrics
	logger    *zap.Logger
	group     singleflight.Group
	interval  time.Duration
}

// NewMaintenanceService constructs the scheduler.
func NewMaintenanceService(repo announcementRepository, ledger historyLedger, publisher eventPublisher, metrics maintenanceMetrics, logger *zap.Logger, interval time.Duration) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaintenanceService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
	}
}

// Run executes one maintenance pass. Callers arriving while a pass is in
// flight share its result instead of starting another.
func (s *MaintenanceService) Run(ctx context.Context) error {
	_, err, _ := s.group.Do("maintenance", func() (interface{}, error) {
		return nil, s.runOnce(ctx)
	})
	return err
}

// Start runs maintenance on a fixed interval until the context is done.
func (s *MaintenanceService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Run(ctx); err != nil {
					s.logger.Sugar().Warnw("scheduled maintenance failed", "error", err)
				}
			}
		}
	}()
}

func (s *MaintenanceService) runOnce(ctx context.Context) error {
	started := time.Now()
	backfilled, archived, err := s.pass(ctx)
	if s.metrics != nil {
		s.metrics.MaintenanceRun(time.Since(started), len(backfilled), len(archived), err)
	}
	if err != nil {
		return err
	}
	if len(backfilled) > 0 || len(archived) > 0 {
		s.logger.Sugar().Infow("maintenance pass applied changes",
			"backfilled", len(backfilled), "archived", len(archived))
		s.publisher.Publish(ctx, EventAnnouncementsExpired, map[string]interface{}{
			"backfilled": backfilled,
			"archived":   archived,
		})
	}
	return nil
}

func (s *MaintenanceService) pass(ctx context.Context) (backfilled, archived []string, err error) {
	all, err := s.repo.List(ctx, models.AnnouncementFilter{})
	if err != nil {
		return nil, nil, err
	}

	// Backfill: every announcement gets a created entry, stamped with the
	// announcement's own creation time.
	createdIDs, err := s.ledger.ExistingActionIDs(ctx, models.HistoryActionCreated)
	if err != nil {
		return nil, nil, err
	}
	for i := range all {
		a := &all[i]
		if _, ok := createdIDs[a.ID]; ok {
			continue
		}
		if err := s.ledger.Append(ctx, a, models.HistoryActionCreated, "system", a.CreatedAt); err != nil {
			return backfilled, nil, err
		}
		backfilled = append(backfilled, a.ID)
	}

	// Archive: expired announcements get an expired entry once, then any
	// still active get deactivated.
	expiredIDs, err := s.ledger.ExistingActionIDs(ctx, models.HistoryActionExpired)
	if err != nil {
		return backfilled, nil, err
	}
	now := time.Now().UTC()
	var deactivate []string
	for i := range all {
		a := &all[i]
		if !a.IsExpired(now) {
			continue
		}
		changed := false
		if _, ok := expiredIDs[a.ID]; !ok {
			if err := s.ledger.Append(ctx, a, models.HistoryActionExpired, "system", now); err != nil {
				return backfilled, archived, err
			}
			changed = true
		}
		if a.IsActive {
			deactivate = append(deactivate, a.ID)
			changed = true
		}
		if changed {
			archived = append(archived, a.ID)
		}
	}
	if len(deactivate) > 0 {
		if err := s.repo.Deactivate(ctx, deactivate); err != nil {
			return backfilled, archived, err
		}
	}
	return backfilled, archived, nil
}
