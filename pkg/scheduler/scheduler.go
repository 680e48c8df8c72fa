// Package scheduler runs catalogue imports on an interval. A Redis lock keeps one
// replica importing at a time.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	lockKey = "scheduled-import"
	// OwnerID owns scheduled runs in the batch state store.
	OwnerID = "scheduler"
)

// Importer is the part of catalog.Service the scheduler drives.
type Importer interface {
	Begin(ctx context.Context, ownerID string, opts catalog.BeginOptions) (*catalog.BatchResult, error)
	Resume(ctx context.Context, ownerID, processID string, batchSize int, onBatch func(*catalog.BatchResult) error) (*catalog.BatchResult, error)
}

type Config struct {
	Interval time.Duration
	// FullImportInterval forces a full import once this long has passed since the
	// last scheduled full import. Zero leaves the mode to the importer.
	FullImportInterval time.Duration
	BatchSize          int
	LockTTL            time.Duration
}

type Scheduler struct {
	cfg      Config
	importer Importer
	locker   *redis.Locker
	logger   ectologger.Logger
	now      func() time.Time
	lastFull time.Time
}

func New(cfg Config, importer Importer, locker *redis.Locker, logger ectologger.Logger) *Scheduler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Scheduler{cfg: cfg, importer: importer, locker: locker, logger: logger, now: time.Now}
}

// Run imports every Interval until ctx is done. A zero interval disables the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		s.logger.WithContext(ctx).Info("Scheduled imports disabled")
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.WithContext(ctx).Infof("Scheduled imports every %s", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.WithContext(ctx).WithError(err).Error("Scheduled import failed")
			}
		}
	}
}

// RunOnce runs one import to completion. It returns nil without importing when
// another replica holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (*catalog.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunOnce")
	defer span.End()

	var result *catalog.BatchResult
	err := s.locker.WithLock(ctx, lockKey, s.cfg.LockTTL, func(ctx context.Context, lock *redis.Lock) error {
		opts := catalog.BeginOptions{}
		full := s.fullDue()
		if full {
			opts.ForceFullImport = &full
		}

		begun, err := s.importer.Begin(ctx, OwnerID, opts)
		if err != nil {
			return err
		}

		result, err = s.importer.Resume(ctx, OwnerID, begun.ProcessID, s.cfg.BatchSize, func(*catalog.BatchResult) error {
			return lock.Extend(ctx, s.cfg.LockTTL)
		})
		if err != nil {
			return err
		}
		if full {
			s.lastFull = s.now()
		}
		return nil
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		s.logger.WithContext(ctx).Debug("Scheduled import already running on another replica")
		return nil, nil
	}
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"process_id": result.ProcessID,
		"processed":  result.Stats.Processed,
		"stale":      result.StaleProducts,
	}).Info("Scheduled import complete")
	return result, nil
}

func (s *Scheduler) fullDue() bool {
	if s.cfg.FullImportInterval <= 0 {
		return false
	}
	return s.lastFull.IsZero() || s.now().Sub(s.lastFull) >= s.cfg.FullImportInterval
}
