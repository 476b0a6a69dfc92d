package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hightide-labs/identity/internal/identity/store"
)

// HousekeepingService periodically deletes sessions whose refresh window has
// lapsed. A lapsed session's tokens are already unusable (the refresh check
// rejects them), so this is purely about bounding table growth. Cache-side
// state needs no sweeping; everything there carries a TTL or is reset
// explicitly.
type HousekeepingService struct {
	Store      store.Store
	Logger     *slog.Logger
	Interval   time.Duration
	RefreshTTL time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService builds the sweeper. An interval of 0 or less
// defaults to 1 hour.
func NewHousekeepingService(
	st store.Store,
	logger *slog.Logger,
	interval, refreshTTL time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:      st,
		Logger:     logger,
		Interval:   interval,
		RefreshTTL: refreshTTL,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// First sweep right away so a restart doesn't defer cleanup a full
	// interval.
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.RefreshTTL)

	deleted, err := s.Store.Sessions().DeleteSessionsUpdatedBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to delete lapsed sessions", "error", err)
		return
	}
	if deleted > 0 {
		s.Logger.Info("deleted lapsed sessions", "count", deleted)
	}
}
