package deletion

import (
	"sentinel-shield/internal/platform"
	"sentinel-shield/internal/settings"

	"go.uber.org/zap"
)

// DefaultNoticeColor is the embed colour of deletion notices.
const DefaultNoticeColor = 0xE74C3C

// Service captures deleted entities, looks them up and restores them.
// All state lives in the store; a Service holds no per-guild memory.
type Service struct {
	store       settings.Store
	settings    *settings.Settings
	client      platform.Client
	logger      *zap.Logger
	metrics     *Metrics
	clock       Clock
	noticeColor int
}

func NewService(store settings.Store, client platform.Client, logger *zap.Logger, metrics *Metrics) *Service {
	return &Service{
		store:       store,
		settings:    settings.New(store),
		client:      client,
		logger:      logger,
		metrics:     metrics,
		clock:       realClock{},
		noticeColor: DefaultNoticeColor,
	}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Service) WithNoticeColor(color int) {
	if color != 0 {
		s.noticeColor = color
	}
}

func snapshotsKey(guildID string) string {
	return settings.Key(guildID, settings.DomainDeleted)
}
