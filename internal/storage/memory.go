package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

// Memory is an in-process store for tests and ephemeral runs. Values
// are deep-copied through JSON-free struct copies on the way in and
// out so callers cannot mutate stored state.
type Memory struct {
	mu             sync.RWMutex
	investigations map[string]*models.Investigation
	reports        map[string]*models.Report
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		investigations: make(map[string]*models.Investigation),
		reports:        make(map[string]*models.Report),
	}
}

func (m *Memory) SaveInvestigation(_ context.Context, inv *models.Investigation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.investigations[inv.ID()] = &cp
	return nil
}

func (m *Memory) GetInvestigation(_ context.Context, id string) (*models.Investigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.investigations[id]
	if !ok {
		return nil, errors.NotFoundf("investigation %s not found", id)
	}
	cp := *inv
	return &cp, nil
}

func (m *Memory) ListInvestigations(_ context.Context, limit, offset int) ([]*models.Investigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*models.Investigation, 0, len(m.investigations))
	for _, inv := range m.investigations {
		all = append(all, inv.WithoutReport())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID() < all[j].ID()
	})
	return paginate(all, limit, offset), nil
}

func (m *Memory) DeleteInvestigation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.investigations[id]; !ok {
		return errors.NotFoundf("investigation %s not found", id)
	}
	delete(m.investigations, id)
	delete(m.reports, id)
	return nil
}

func (m *Memory) SaveReport(_ context.Context, rep *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rep
	m.reports[rep.InvestigationID] = &cp
	return nil
}

func (m *Memory) GetReport(_ context.Context, investigationID string) (*models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[investigationID]
	if !ok {
		return nil, errors.NotFoundf("report for investigation %s not found", investigationID)
	}
	cp := *rep
	return &cp, nil
}

func (m *Memory) Close() error { return nil }

func paginate(all []*models.Investigation, limit, offset int) []*models.Investigation {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
