// Package history persists execution records for later inspection.
package history

import (
	"context"
	"time"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

// Record is one completed (or failed-to-start) execution.
type Record struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Outcome     string    `json:"outcome"`
	AuthMode    string    `json:"authMode"`
	ExitCode    int       `json:"exitCode"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Response    string    `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Repository stores and retrieves execution records.
type Repository interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Close()
}

// Provide builds the repository selected by configuration: an in-process
// store by default, Postgres when the driver says so.
func Provide(ctx context.Context, cfg config.HistoryConfig, log *logger.Logger) (Repository, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresRepository(ctx, cfg, log)
	case "", "memory":
		return NewMemoryRepository(cfg.MaxRecords), nil
	default:
		return nil, errors.InternalError("unknown history driver: "+cfg.Driver, nil)
	}
}
