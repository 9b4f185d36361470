package export

import (
	"context"
	"fmt"

	"github.com/civicdocs/docmirror/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ExportAll runs the state machine for a batch of records with at most
// `concurrency` jobs in flight. Jobs are independent; no ordering is
// guaranteed between them. Infrastructure errors cancel the remaining
// jobs, vendor-side failures do not.
func (o *Orchestrator) ExportAll(ctx context.Context, recordIDs []string, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	results := make([]*Result, len(recordIDs))
	for i, id := range recordIDs {
		eg.Go(func() error {
			r, err := o.Export(gctx, id)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExportPending re-runs the pipeline for every record whose enrichment
// never stuck. A failed export leaves its record pending, so a
// scheduled sweep through here eventually retries it. A record that is
// still waiting in the task queue can be exported twice by an
// overlapping sweep; the pipeline writes the same key and the same
// enrichment, so the overlap costs a duplicate download, nothing more.
func (o *Orchestrator) ExportPending(ctx context.Context, concurrency int) ([]*Result, error) {
	pending, err := o.records.ListPendingEnrichment(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending enrichment: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	ids := make([]string, len(pending))
	for i, rec := range pending {
		ids[i] = rec.ID
	}
	logger.Infof("retry sweep: %d records pending enrichment", len(ids))
	return o.ExportAll(ctx, ids, concurrency)
}
