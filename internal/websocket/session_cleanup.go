package websocket

import (
	"time"

	"go.uber.org/zap"
)

// CleanupService periodically sweeps sessions whose ephemeral credential has
// expired. The provider refuses further traffic on a lapsed token, so the
// sweep converts a silent dead session into an explicit disconnect.
type CleanupService struct {
	hub      *Hub
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewCleanupService creates a new cleanup service for the hub.
func NewCleanupService(hub *Hub, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		hub:      hub,
		interval: time.Minute,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep process
func (s *CleanupService) Start() {
	go s.sweepLoop()
	s.logger.Info("Session cleanup service started")
}

// Stop gracefully stops the cleanup service
func (s *CleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

func (s *CleanupService) sweepLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if swept := s.hub.SweepExpired(); swept > 0 {
				s.logger.Info("Swept sessions with expired credentials",
					zap.Int("count", swept))
			}
		}
	}
}
