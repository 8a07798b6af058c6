// metadata_sync.go implements the MetadataSyncJob, which periodically makes sure
// every deployed contract has a published metadata document. It repairs gaps
// left by dropped events, storage outages, or a backend switch.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/metadata"
)

const syncPageSize = 200

// ContractLister pages through deployed contracts in creation order.
// factory.Store satisfies it.
type ContractLister interface {
	List(ctx context.Context, after uint64, limit int) ([]*factory.Contract, error)
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Checked   int
	Published int
	Failed    int
}

// MetadataSyncJob periodically publishes missing metadata documents
type MetadataSyncJob struct {
	contracts   ContractLister
	publisher   *metadata.Publisher
	interval    time.Duration
	concurrency int
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewMetadataSyncJob creates a new metadata sync job
func NewMetadataSyncJob(contracts ContractLister, publisher *metadata.Publisher, interval time.Duration, concurrency int) *MetadataSyncJob {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	return &MetadataSyncJob{
		contracts:   contracts,
		publisher:   publisher,
		interval:    interval,
		concurrency: concurrency,
		stopChan:    make(chan struct{}),
	}
}

// Start runs a pass immediately and then on every interval until Stop is
// called or ctx is cancelled. It blocks; run it in its own goroutine.
func (j *MetadataSyncJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("metadata sync job started", "interval", j.interval, "concurrency", j.concurrency)

	j.run(ctx)

	for {
		select {
		case <-ticker.C:
			j.run(ctx)
		case <-j.stopChan:
			slog.Info("metadata sync job stopped")
			return
		case <-ctx.Done():
			slog.Info("metadata sync job context cancelled")
			return
		}
	}
}

// Stop stops the job. It is safe to call more than once.
func (j *MetadataSyncJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

func (j *MetadataSyncJob) run(ctx context.Context) {
	res, err := j.RunOnce(ctx)
	if err != nil {
		slog.Error("metadata sync run failed",
			"checked", res.Checked, "published", res.Published, "failed", res.Failed, "error", err)
		return
	}
	if res.Published > 0 {
		slog.Info("metadata sync run completed", "checked", res.Checked, "published", res.Published)
	} else {
		slog.Debug("metadata sync run completed", "checked", res.Checked)
	}
}

// RunOnce walks every contract and publishes documents that are missing.
// A failure on one contract does not stop the others; the first error is
// returned after the pass finishes. An aborted pass still reports the work
// done before it stopped.
func (j *MetadataSyncJob) RunOnce(ctx context.Context) (SyncResult, error) {
	var (
		res       SyncResult
		published atomic.Int64
		failed    atomic.Int64
		firstErr  error
		after     uint64
	)
	tally := func() SyncResult {
		res.Published = int(published.Load())
		res.Failed = int(failed.Load())
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return tally(), err
		}

		page, err := j.contracts.List(ctx, after, syncPageSize)
		if err != nil {
			return tally(), fmt.Errorf("failed to list contracts: %w", err)
		}
		if len(page) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(j.concurrency)
		for _, c := range page {
			g.Go(func() error {
				ok, err := j.publisher.Published(ctx, c.Address())
				if err != nil {
					failed.Add(1)
					return fmt.Errorf("check %s: %w", c.Address().Hex(), err)
				}
				if ok {
					return nil
				}
				if err := j.publisher.PublishContract(ctx, c, metadata.SourceSync); err != nil {
					failed.Add(1)
					return err
				}
				published.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}

		res.Checked += len(page)
		after = page[len(page)-1].Sequence()
		if len(page) < syncPageSize {
			break
		}
	}

	return tally(), firstErr
}
