// File: internal/repository/eventlog/interface.go
package eventlog

import (
	"context"

	"github.com/evanmb/go-converse/internal/domain"
)

// EventLogRepository persists log events reported by the browser frontend.
type EventLogRepository interface {
	Create(ctx context.Context, event *domain.ClientEvent) (*domain.ClientEvent, error)
	FindRecent(ctx context.Context, limit int) ([]domain.ClientEvent, error)
}
