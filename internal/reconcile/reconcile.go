package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/civicdocs/docmirror/internal/crawl"
	"github.com/civicdocs/docmirror/internal/document"
	"github.com/civicdocs/docmirror/internal/document/repository"
	"github.com/civicdocs/docmirror/internal/lfapi"
	"github.com/civicdocs/docmirror/pkg/logger"
	"github.com/civicdocs/docmirror/pkg/metrics"
)

// RemoteTimeLayout is the repository's timestamp encoding at data
// column 10, e.g. "1/6/2020 3:45:52 PM". No leading zeros.
const RemoteTimeLayout = "1/2/2006 3:04:05 PM"

// VersionStore is the slice of the document repository the reconciler
// needs. Lookup is always by greatest LocalVersion for the id.
type VersionStore interface {
	FindLatestVersion(ctx context.Context, repositoryID int64) (*document.Record, error)
	CreateVersion(ctx context.Context, rec *document.Record) (string, error)
}

// NewVersion identifies a record created by reconciliation; each one
// still needs the export pipeline run against it.
type NewVersion struct {
	RecordID     string
	EntryID      int64
	LocalVersion int
}

// Reconciler diffs a crawl snapshot against the persisted document
// versions. It performs no network I/O.
type Reconciler struct {
	store  VersionStore
	docURL func(entryID int64) string
}

// New builds a reconciler. docURL derives the public viewer URL stored
// on new records; it may be nil.
func New(store VersionStore, docURL func(int64) string) *Reconciler {
	return &Reconciler{store: store, docURL: docURL}
}

// Reconcile walks the snapshot's documents and creates a new version
// row for every document that is unknown or remotely newer than its
// latest local version. Unparseable entries are logged and skipped;
// the rest of the snapshot is still processed. Running twice over the
// same snapshot and store creates nothing the second time.
func (r *Reconciler) Reconcile(ctx context.Context, snap *crawl.Snapshot) ([]NewVersion, error) {
	var created []NewVersion
	skippedBad := 0

	for _, e := range snap.Documents {
		select {
		case <-ctx.Done():
			return created, ctx.Err()
		default:
		}

		raw, err := e.DataString(lfapi.ModifiedFieldIndex)
		if err != nil {
			logger.Errorf("reconcile: entry %d: %v", e.EntryID, err)
			skippedBad++
			continue
		}
		remoteTS, err := time.Parse(RemoteTimeLayout, raw)
		if err != nil {
			logger.Errorf("reconcile: entry %d: unparseable remote timestamp %q: %v", e.EntryID, raw, err)
			skippedBad++
			continue
		}

		version := 1
		latest, err := r.store.FindLatestVersion(ctx, e.EntryID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// first sighting, create version 1
		case err != nil:
			return created, fmt.Errorf("reconcile entry %d: lookup: %w", e.EntryID, err)
		default:
			if !remoteTS.After(latest.LastUpdatedOnRemote) {
				continue
			}
			version = latest.LocalVersion + 1
		}

		rec := &document.Record{
			RepositoryID:        e.EntryID,
			LocalVersion:        version,
			Title:               e.Name,
			LastUpdatedOnRemote: remoteTS,
		}
		if r.docURL != nil {
			rec.RepositoryURL = r.docURL(e.EntryID)
		}
		if src, err := json.Marshal(e); err == nil {
			rec.SourceJSON = string(src)
		}

		id, err := r.store.CreateVersion(ctx, rec)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateVersion) {
				// another pass won the race; nothing to do
				logger.Warnf("reconcile: entry %d version %d already created elsewhere", e.EntryID, version)
				continue
			}
			return created, fmt.Errorf("reconcile entry %d: create version %d: %w", e.EntryID, version, err)
		}
		metrics.RecordsCreated.Inc()
		logger.Infof("reconcile: entry %d -> version %d (record %s)", e.EntryID, version, id)
		created = append(created, NewVersion{RecordID: id, EntryID: e.EntryID, LocalVersion: version})
	}

	if skippedBad > 0 {
		logger.Warnf("reconcile: skipped %d entries with bad data", skippedBad)
	}
	return created, nil
}
