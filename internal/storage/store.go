package storage

import (
	"context"
	"time"

	"github.com/trailhound/trailhound/internal/config"
	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

// Store persists investigations and their reports. Implementations are
// safe for concurrent use. GetInvestigation and GetReport return a
// not_found error for unknown identifiers.
type Store interface {
	SaveInvestigation(ctx context.Context, inv *models.Investigation) error
	GetInvestigation(ctx context.Context, id string) (*models.Investigation, error)
	// ListInvestigations returns investigations newest-first, without
	// their report payloads.
	ListInvestigations(ctx context.Context, limit, offset int) ([]*models.Investigation, error)
	DeleteInvestigation(ctx context.Context, id string) error

	SaveReport(ctx context.Context, rep *models.Report) error
	GetReport(ctx context.Context, investigationID string) (*models.Report, error)

	Close() error
}

// Open constructs the store named by the configuration
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return OpenBolt(cfg.LocalPath)
	case "sqlite":
		return OpenSQL("sqlite3", cfg.LocalPath)
	case "postgres":
		return OpenSQL("postgres", cfg.PostgresDSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.Internalf("unknown storage type %q", cfg.Type)
	}
}

// Sweep deletes investigations that have outlived their retention
// window. It returns the count removed. Investigations with no
// retention constraint are kept.
func Sweep(ctx context.Context, s Store, now time.Time) (int, error) {
	const page = 200
	var expired []string
	for offset := 0; ; offset += page {
		invs, err := s.ListInvestigations(ctx, page, offset)
		if err != nil {
			return 0, err
		}
		if len(invs) == 0 {
			break
		}
		for _, inv := range invs {
			days := inv.Seed.Constraints.RetentionDays
			if days <= 0 {
				continue
			}
			if now.Sub(inv.StartedAt) > time.Duration(days)*24*time.Hour {
				expired = append(expired, inv.ID())
			}
		}
		if len(invs) < page {
			break
		}
	}
	for i, id := range expired {
		if err := s.DeleteInvestigation(ctx, id); err != nil {
			return i, err
		}
	}
	return len(expired), nil
}
