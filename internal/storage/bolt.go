package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/trailhound/trailhound/internal/errors"
	"github.com/trailhound/trailhound/internal/models"
)

var (
	bucketInvestigations = []byte("investigations")
	bucketReports        = []byte("reports")
	// index: big-endian StartedAt nanos + id -> id, so cursors iterate
	// in time order
	bucketByTime = []byte("investigations_by_time")
)

// Bolt stores investigations in a single local bbolt file. This is the
// default backend: zero daemons, one file under the config directory.
type Bolt struct {
	db     *bolt.DB
	logger *slog.Logger
}

// OpenBolt opens (creating if needed) the store file at path
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityCritical, "create storage directory")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityCritical, "open storage file")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketInvestigations, bucketReports, bucketByTime} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindInternal, errors.SeverityCritical, "initialize storage buckets")
	}
	return &Bolt{db: db, logger: slog.Default().With("component", "storage")}, nil
}

func timeKey(startedAt time.Time, id string) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(startedAt.UnixNano()))
	return append(key, id...)
}

func (b *Bolt) SaveInvestigation(_ context.Context, inv *models.Investigation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "encode investigation")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketInvestigations).Put([]byte(inv.ID()), payload); err != nil {
			return err
		}
		return tx.Bucket(bucketByTime).Put(timeKey(inv.StartedAt, inv.ID()), []byte(inv.ID()))
	})
}

func (b *Bolt) GetInvestigation(_ context.Context, id string) (*models.Investigation, error) {
	var inv *models.Investigation
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketInvestigations).Get([]byte(id))
		if raw == nil {
			return errors.NotFoundf("investigation %s not found", id)
		}
		inv = &models.Investigation{}
		return json.Unmarshal(raw, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (b *Bolt) ListInvestigations(_ context.Context, limit, offset int) ([]*models.Investigation, error) {
	var out []*models.Investigation
	err := b.db.View(func(tx *bolt.Tx) error {
		invs := tx.Bucket(bucketInvestigations)
		c := tx.Bucket(bucketByTime).Cursor()
		skipped := 0
		// newest first: walk the time index backwards
		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			raw := invs.Get(id)
			if raw == nil {
				continue // stale index entry
			}
			inv := &models.Investigation{}
			if err := json.Unmarshal(raw, inv); err != nil {
				return err
			}
			out = append(out, inv.WithoutReport())
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) DeleteInvestigation(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		invs := tx.Bucket(bucketInvestigations)
		raw := invs.Get([]byte(id))
		if raw == nil {
			return errors.NotFoundf("investigation %s not found", id)
		}
		inv := &models.Investigation{}
		if err := json.Unmarshal(raw, inv); err != nil {
			return err
		}
		if err := invs.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByTime).Delete(timeKey(inv.StartedAt, id)); err != nil {
			return err
		}
		return tx.Bucket(bucketReports).Delete([]byte(id))
	})
}

func (b *Bolt) SaveReport(_ context.Context, rep *models.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, errors.SeverityHigh, "encode report")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Put([]byte(rep.InvestigationID), payload)
	})
}

func (b *Bolt) GetReport(_ context.Context, investigationID string) (*models.Report, error) {
	var rep *models.Report
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketReports).Get([]byte(investigationID))
		if raw == nil {
			return errors.NotFoundf("report for investigation %s not found", investigationID)
		}
		rep = &models.Report{}
		return json.Unmarshal(raw, rep)
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
