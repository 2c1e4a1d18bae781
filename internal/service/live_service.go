package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/dto"
	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
)

// Broadcast event names for live state changes.
const (
	EventLiveStarted = "live_started"
	EventLiveStopped = "live_stopped"
)

type liveRepository interface {
	Get(ctx context.Context) (*models.LiveState, error)
	Save(ctx context.Context, state *models.LiveState) (*models.LiveState, error)
}

// StartLiveRequest starts a broadcast from a primary link or a link list.
type StartLiveRequest struct {
	Link     *string  `json:"link"`
	Links    []string `json:"links"`
	Category *string  `json:"category"`
}

// LiveService manages the singleton broadcast state. Deployments without a
// live_state table fall back to a per-instance mirror behind a mutex; that
// mirror resets on restart and is not shared across replicas.
type LiveService struct {
	repo      liveRepository
	ledger    historyLedger
	publisher eventPublisher
	logger    *zap.Logger
	cfg       AnnouncementServiceConfig

	mu     sync.Mutex
	mirror *models.LiveState
}

// NewLiveService constructs the service.
func NewLiveService(repo liveRepository, ledger historyLedger, publisher eventPublisher, logger *zap.Logger, cfg AnnouncementServiceConfig) *LiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &LiveService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
}

// Get returns the current live state, defaulting to OFF when nothing has
// ever been stored.
func (s *LiveService) Get(ctx context.Context) (*dto.LiveStateDTO, error) {
	state, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	result := dto.FromLiveState(state)
	return &result, nil
}

// Start switches the broadcast on with the given links.
func (s *LiveService) Start(ctx context.Context, req StartLiveRequest, userEmail string) (*dto.LiveStateDTO, error) {
	candidates := req.Links
	if len(candidates) == 0 && req.Link != nil {
		candidates = []string{*req.Link}
	}
	links, err := normalizeLiveLinks(candidates, s.cfg.AllowedProviders, s.cfg.MaxLinks)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one live link is required")
	}

	now := time.Now().UTC()
	state := &models.LiveState{
		Status:    models.LiveStatusOn,
		Link:      &links[0],
		Links:     links,
		Category:  req.Category,
		StartedAt: &now,
		UpdatedAt: now,
	}
	stored, err := s.persist(ctx, state)
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf("live broadcast started with %d link(s)", len(links))
	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionLiveStarted, userEmail, details); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "live_started", "error", err)
	}
	s.publisher.Publish(ctx, EventLiveStarted, map[string]interface{}{
		"links":    links,
		"category": req.Category,
	})

	result := dto.FromLiveState(stored)
	return &result, nil
}

// Stop switches the broadcast off, keeping the last links for reference.
func (s *LiveService) Stop(ctx context.Context, userEmail string) (*dto.LiveStateDTO, error) {
	current, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state := &models.LiveState{
		Status:    models.LiveStatusOff,
		Link:      current.Link,
		Links:     current.Links,
		Category:  current.Category,
		StartedAt: current.StartedAt,
		StoppedAt: &now,
		UpdatedAt: now,
	}
	stored, err := s.persist(ctx, state)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionLiveStopped, userEmail, "live broadcast stopped"); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "live_stopped", "error", err)
	}
	s.publisher.Publish(ctx, EventLiveStopped, nil)

	result := dto.FromLiveState(stored)
	return &result, nil
}

func (s *LiveService) load(ctx context.Context) (*models.LiveState, error) {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load live state")
	}
	if state != nil {
		return state, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mirror != nil {
		copied := *s.mirror
		return &copied, nil
	}
	return &models.LiveState{Status: models.LiveStatusOff, Links: []string{}}, nil
}

// persist writes through the repository and mirrors the state locally when
// the backing table is absent.
func (s *LiveService) persist(ctx context.Context, state *models.LiveState) (*models.LiveState, error) {
	stored, err := s.repo.Save(ctx, state)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save live state")
	}
	if stored != nil {
		return stored, nil
	}

	s.mu.Lock()
	copied := *state
	s.mirror = &copied
	s.mu.Unlock()
	s.logger.Sugar().Debugw("live_state table absent, using in-process mirror")
	return state, nil
}
