package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/internal/config"
	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

func configFor(typ, localPath, dsn string) config.StorageConfig {
	return config.StorageConfig{Type: typ, LocalPath: localPath, PostgresDSN: dsn}
}

func investigation(id string, startedAt time.Time, retentionDays int) *models.Investigation {
	return &models.Investigation{
		Seed: models.Seed{
			InvestigationID: id,
			Subject:         models.SubjectIdentifiers{FullName: "Alice Roe"},
			Constraints:     models.Constraints{RetentionDays: retentionDays, MaxSearchDepth: 2},
		},
		Status:    models.StatusCompleted,
		StartedAt: startedAt,
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	boltStore, err := OpenBolt(filepath.Join(dir, "bolt.db"))
	require.NoError(t, err)

	sqliteStore, err := OpenSQL("sqlite3", filepath.Join(dir, "sqlite.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemory(),
		"bolt":   boltStore,
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			inv := investigation("inv-1", time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), 30)
			inv.EntitiesFound = 7

			require.NoError(t, s.SaveInvestigation(ctx, inv))
			got, err := s.GetInvestigation(ctx, "inv-1")
			require.NoError(t, err)
			assert.Equal(t, "inv-1", got.ID())
			assert.Equal(t, 7, got.EntitiesFound)
			assert.Equal(t, models.StatusCompleted, got.Status)

			// Re-saving updates in place
			inv.EntitiesFound = 9
			require.NoError(t, s.SaveInvestigation(ctx, inv))
			got, err = s.GetInvestigation(ctx, "inv-1")
			require.NoError(t, err)
			assert.Equal(t, 9, got.EntitiesFound)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.GetInvestigation(ctx, "missing")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))

			_, err = s.GetReport(ctx, "missing")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))

			err = s.DeleteInvestigation(ctx, "missing")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))
		})
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				inv := investigation(fmt.Sprintf("inv-%d", i), base.Add(time.Duration(i)*time.Hour), 30)
				require.NoError(t, s.SaveInvestigation(ctx, inv))
			}

			page, err := s.ListInvestigations(ctx, 2, 0)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "inv-4", page[0].ID())
			assert.Equal(t, "inv-3", page[1].ID())

			page, err = s.ListInvestigations(ctx, 2, 4)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "inv-0", page[0].ID())
		})
	}
}

func TestStoreListStripsReports(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			inv := investigation("inv-1", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), 30)
			inv.Report = &models.Report{InvestigationID: "inv-1"}
			require.NoError(t, s.SaveInvestigation(ctx, inv))

			page, err := s.ListInvestigations(ctx, 10, 0)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Nil(t, page[0].Report, "listings must not carry report payloads")
		})
	}
}

func TestStoreReportRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rep := &models.Report{
				InvestigationID: "inv-1",
				GeneratedAt:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			}
			require.NoError(t, s.SaveReport(ctx, rep))
			got, err := s.GetReport(ctx, "inv-1")
			require.NoError(t, err)
			assert.Equal(t, "inv-1", got.InvestigationID)
		})
	}
}

func TestStoreDeleteCascadesReport(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			inv := investigation("inv-1", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), 30)
			require.NoError(t, s.SaveInvestigation(ctx, inv))
			require.NoError(t, s.SaveReport(ctx, &models.Report{InvestigationID: "inv-1"}))

			require.NoError(t, s.DeleteInvestigation(ctx, "inv-1"))
			_, err := s.GetInvestigation(ctx, "inv-1")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))
			_, err = s.GetReport(ctx, "inv-1")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))
		})
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

			// 40 days old with 30-day retention: expired
			require.NoError(t, s.SaveInvestigation(ctx, investigation("old", now.AddDate(0, 0, -40), 30)))
			// 10 days old with 30-day retention: kept
			require.NoError(t, s.SaveInvestigation(ctx, investigation("fresh", now.AddDate(0, 0, -10), 30)))
			// old but no retention constraint: kept
			require.NoError(t, s.SaveInvestigation(ctx, investigation("pinned", now.AddDate(0, 0, -200), 0)))

			removed, err := Sweep(ctx, s, now)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, err = s.GetInvestigation(ctx, "old")
			assert.True(t, errors.IsKind(err, errors.KindNotFound))
			_, err = s.GetInvestigation(ctx, "fresh")
			assert.NoError(t, err)
			_, err = s.GetInvestigation(ctx, "pinned")
			assert.NoError(t, err)
		})
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(configFor("memory", "", ""))
	require.NoError(t, err)
	_, ok := s.(*Memory)
	assert.True(t, ok)

	s, err = Open(configFor("bolt", filepath.Join(dir, "b.db"), ""))
	require.NoError(t, err)
	_, ok = s.(*Bolt)
	assert.True(t, ok)
	s.Close()

	_, err = Open(configFor("nonsense", "", ""))
	assert.Error(t, err)
}
