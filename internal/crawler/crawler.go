package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/civicdocs/docmirror/internal/config"
	"github.com/civicdocs/docmirror/internal/crawl"
	"github.com/civicdocs/docmirror/internal/lfapi"
	"github.com/civicdocs/docmirror/pkg/logger"
	"github.com/civicdocs/docmirror/pkg/metrics"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Lister is the slice of the repository client the crawler needs.
type Lister interface {
	ListFolder(ctx context.Context, folderID int64, start, end int) (*lfapi.ListingPage, error)
}

// BlobStore stores the snapshot inventory JSON.
type BlobStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Recorder persists the crawl audit record.
type Recorder interface {
	Save(ctx context.Context, c *crawl.Crawl) error
}

// Crawler walks the remote folder tree and produces a flat snapshot of
// everything it finds. Traversal is an
// explicit depth-first stack with a visited set, so a cyclic or absurdly
// deep remote tree cannot wedge it. Listing pages within one folder are
// strictly sequential; the server's window offsets are stateful.
type Crawler struct {
	client  Lister
	blobs   BlobStore
	records Recorder
	limiter *rate.Limiter
	cfg     config.CrawlConfig
}

// New builds a crawler. blobs and records may be nil, in which case the
// snapshot is returned but not persisted.
func New(client Lister, blobs BlobStore, records Recorder, cfg config.CrawlConfig) *Crawler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 40
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 64
	}
	var lim *rate.Limiter
	if cfg.PageDelay > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.PageDelay), 1)
	}
	return &Crawler{client: client, blobs: blobs, records: records, limiter: lim, cfg: cfg}
}

type frame struct {
	folderID int64
	depth    int
}

// Run performs a full traversal from rootID and returns the sealed
// snapshot. Folder-level anomalies (shortcut listings, unclassifiable
// entries) are logged and skipped; transport or shape failures abort
// the crawl.
func (c *Crawler) Run(ctx context.Context, rootID int64) (*crawl.Snapshot, error) {
	snap := &crawl.Snapshot{
		ID:     uuid.NewString(),
		Start:  time.Now().UTC(),
		RootID: rootID,
	}

	visited := map[int64]bool{}
	stack := []frame{{folderID: rootID, depth: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[f.folderID] {
			logger.Warnf("crawler: folder %d listed more than once, skipping revisit", f.folderID)
			continue
		}
		visited[f.folderID] = true
		if f.depth > c.cfg.MaxDepth {
			logger.Warnf("crawler: folder %d exceeds max depth %d, skipping", f.folderID, c.cfg.MaxDepth)
			continue
		}

		folders, docs, err := c.listAll(ctx, f.folderID)
		if err != nil {
			var lfe *lfapi.ListingFailedError
			if errors.As(err, &lfe) {
				// entry-level anomaly (e.g. a Shortcut posing as a
				// folder); the rest of the crawl proceeds
				logger.Warnf("crawler: %v", lfe)
				metrics.EntriesClassified.WithLabelValues("anomalous").Inc()
				continue
			}
			return nil, fmt.Errorf("crawl folder %d: %w", f.folderID, err)
		}

		snap.Folders = append(snap.Folders, folders...)
		snap.Documents = append(snap.Documents, docs...)

		// push children in reverse so the first subfolder is visited
		// next; keeps snapshot order deterministic for a given tree
		for i := len(folders) - 1; i >= 0; i-- {
			stack = append(stack, frame{folderID: folders[i].EntryID, depth: f.depth + 1})
		}
	}

	snap.End = time.Now().UTC()
	logger.Infof("crawler: finished root %d: %d folders, %d documents", rootID, len(snap.Folders), len(snap.Documents))

	if err := c.persist(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// listAll pages through one folder's listing and partitions the entries.
func (c *Crawler) listAll(ctx context.Context, folderID int64) ([]*crawl.FolderEntry, []*lfapi.Entry, error) {
	var folders []*crawl.FolderEntry
	var docs []*lfapi.Entry

	start := 0
	end := c.cfg.PageSize

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, nil, err
			}
		}

		page, err := c.client.ListFolder(ctx, folderID, start, end)
		if err != nil {
			return nil, nil, err
		}
		metrics.PagesFetched.Inc()

		for _, e := range page.Results {
			if e == nil {
				continue
			}
			switch {
			case e.IsDocument():
				metrics.EntriesClassified.WithLabelValues("document").Inc()
				docs = append(docs, e)
			case e.IsFolder():
				metrics.EntriesClassified.WithLabelValues("folder").Inc()
				folders = append(folders, &crawl.FolderEntry{EntryID: e.EntryID, Name: e.Name, ParentID: folderID})
			default:
				// e.g. the repository's Shortcut type; excluded from
				// both partitions, never fatal
				metrics.EntriesClassified.WithLabelValues("anomalous").Inc()
				logger.Warnf("crawler: anomalous entry %d (%q) in folder %d: targetType=%d type=%d",
					e.EntryID, e.Name, folderID, e.TargetType, e.Type)
			}
		}

		// the final window is the one whose end reaches the total as
		// of the latest page; totalEntries is re-read every page since
		// the remote tree can mutate mid-listing
		if end >= page.TotalEntries {
			break
		}
		start += c.cfg.PageSize
		end += c.cfg.PageSize
	}

	return folders, docs, nil
}

func (c *Crawler) persist(ctx context.Context, snap *crawl.Snapshot) error {
	if c.blobs == nil || c.records == nil {
		return nil
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := fmt.Sprintf("crawls/crawl_%d.json", snap.End.Unix())
	if _, err := c.blobs.Store(ctx, key, b, "application/json"); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	rec := &crawl.Crawl{
		ID:            snap.ID,
		Start:         snap.Start,
		End:           snap.End,
		RootID:        snap.RootID,
		ResultsKey:    key,
		FolderCount:   len(snap.Folders),
		DocumentCount: len(snap.Documents),
	}
	if err := c.records.Save(ctx, rec); err != nil {
		return err
	}
	return nil
}
