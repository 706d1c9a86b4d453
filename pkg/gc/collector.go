// Package gc reclaims storage the normal request flow can leak.
//
// Two kinds of garbage exist:
//   - Orphaned blobs: uploads that were prepared and streamed but never
//     committed, blobs replaced by a re-upload, and blobs whose delete
//     failed after the metadata removal succeeded.
//   - Stale pending files: metadata registered for an upload whose content
//     never arrived.
//
// The collector runs in the background and sweeps both on an interval.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// Collector performs periodic garbage collection.
//
// Thread safety: Start/Stop/RunNow are safe for concurrent use, though the
// expected usage is one Start and one Stop from main.
type Collector struct {
	store  tree.Store
	blobs  blob.Store
	config Config

	// candidates holds the orphans seen by the previous run. A blob is only
	// deleted after it has been orphaned across two consecutive runs, which
	// keeps the sweep from racing an upload that is streaming now and
	// committing in a moment.
	candidates map[tree.ContentID]struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config contains collector configuration.
type Config struct {
	// Enabled controls whether collection runs at all (default: true via
	// config layer).
	Enabled bool

	// Interval between runs (default: 1h).
	Interval time.Duration

	// PendingTTL is how long a pending file may wait for its content before
	// the sweep removes it (default: 24h).
	PendingTTL time.Duration

	// DryRun logs what would be removed without removing it.
	DryRun bool
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 24 * time.Hour
	}
}

// NewCollector creates a collector. Call Start to begin background runs.
func NewCollector(store tree.Store, blobs blob.Store, config Config) *Collector {
	config.applyDefaults()
	return &Collector{
		store:      store,
		blobs:      blobs,
		config:     config,
		candidates: make(map[tree.ContentID]struct{}),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins background collection. No-op when disabled.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		close(c.doneCh)
		return
	}

	logger.Info("Starting garbage collector: interval=%s pending_ttl=%s dry_run=%v",
		c.config.Interval, c.config.PendingTTL, c.config.DryRun)

	go c.worker()
}

// Stop signals the worker and waits for it to finish the in-progress run.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	close(c.stopCh)

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate run, blocking until it completes. Used by
// tests and manual maintenance.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs one run: sweep stale pending files, then diff the blob
// inventory against the referenced set and delete second-time orphans.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	if !c.config.DryRun {
		removed, err := c.store.RemoveStalePending(ctx, time.Now().Add(-c.config.PendingTTL))
		if err != nil {
			return stats, fmt.Errorf("failed to sweep pending files: %w", err)
		}
		stats.PendingRemoved = uint64(removed)
	}

	referenced, err := c.store.AllContentIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get referenced content: %w", err)
	}
	stats.ReferencedCount = uint64(len(referenced))

	referencedSet := make(map[tree.ContentID]struct{}, len(referenced))
	for _, id := range referenced {
		referencedSet[id] = struct{}{}
	}

	existing, err := c.blobs.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list blobs: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	nextCandidates := make(map[tree.ContentID]struct{})
	var doomed []tree.ContentID
	for _, id := range existing {
		if _, ok := referencedSet[id]; ok {
			continue
		}
		if _, seenBefore := c.candidates[id]; seenBefore {
			doomed = append(doomed, id)
		} else {
			nextCandidates[id] = struct{}{}
		}
	}
	c.candidates = nextCandidates
	stats.OrphanedCount = uint64(len(doomed) + len(nextCandidates))

	if c.config.DryRun {
		logger.Info("GC: dry run, would delete %d blobs", len(doomed))
		stats.EndTime = time.Now()
		return stats, nil
	}

	for _, id := range doomed {
		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}
		if err := c.blobs.Delete(ctx, id); err != nil {
			logger.Debug("GC: failed to delete blob %s: %v", id, err)
			stats.FailedCount++
			continue
		}
		stats.DeletedCount++
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// Stats contains statistics from one collection run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	ReferencedCount uint64 // blobs referenced by complete files
	ExistingCount   uint64 // blobs present in the blob store
	OrphanedCount   uint64 // unreferenced blobs seen this run
	DeletedCount    uint64 // blobs deleted this run
	FailedCount     uint64 // blob deletions that failed
	PendingRemoved  uint64 // stale pending files removed
}

// Duration returns how long the run took.
func (s *Stats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Summary renders a one-line digest for logs.
func (s *Stats) Summary() string {
	return fmt.Sprintf("referenced=%d existing=%d orphaned=%d deleted=%d failed=%d pending_removed=%d duration=%s",
		s.ReferencedCount, s.ExistingCount, s.OrphanedCount,
		s.DeletedCount, s.FailedCount, s.PendingRemoved, s.Duration())
}
