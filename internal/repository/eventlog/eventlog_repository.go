// File: internal/repository/eventlog/eventlog_repository.go
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/evanmb/go-converse/internal/domain"
)

var ErrInvalidEvent = errors.New("invalid client event")

const (
	maxMessageLen = 4096
	maxContextLen = 16384

	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

var allowedLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

type gormEventLogRepository struct {
	db *gorm.DB
}

func NewEventLogRepository(db *gorm.DB) EventLogRepository {
	return &gormEventLogRepository{db: db}
}

func (r *gormEventLogRepository) Create(ctx context.Context, event *domain.ClientEvent) (*domain.ClientEvent, error) {
	if err := r.validate(event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		log.Printf("[EventLogRepository] Database error creating event: %v", err)
		return nil, errors.New("database error creating client event")
	}
	return event, nil
}

func (r *gormEventLogRepository) FindRecent(ctx context.Context, limit int) ([]domain.ClientEvent, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	var events []domain.ClientEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		log.Printf("[EventLogRepository] Database error listing events: %v", err)
		return nil, errors.New("database error listing client events")
	}
	return events, nil
}

func (r *gormEventLogRepository) validate(event *domain.ClientEvent) error {
	if event == nil {
		return errors.New("event is nil")
	}
	level := strings.ToLower(strings.TrimSpace(event.Level))
	if !allowedLevels[level] {
		return fmt.Errorf("unknown level %q", event.Level)
	}
	event.Level = level

	if strings.TrimSpace(event.Message) == "" {
		return errors.New("message is required")
	}
	if len(event.Message) > maxMessageLen {
		event.Message = event.Message[:maxMessageLen]
	}
	if len(event.Context) > maxContextLen {
		event.Context = event.Context[:maxContextLen]
	}
	return nil
}
