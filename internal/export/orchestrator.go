package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/civicdocs/docmirror/internal/config"
	"github.com/civicdocs/docmirror/internal/document"
	"github.com/civicdocs/docmirror/internal/lfapi"
	"github.com/civicdocs/docmirror/internal/storage"
	"github.com/civicdocs/docmirror/pkg/logger"
	"github.com/civicdocs/docmirror/pkg/metrics"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// State of an in-flight export job. Jobs live only in memory; a token
// is never persisted, so a crash during polling restarts the job from
// StateRequested on the next pass.
type State string

const (
	StateRequested State = "REQUESTED"
	StatePolling   State = "POLLING"
	StateFinished  State = "FINISHED"
	StateFailed    State = "FAILED"
)

// Metadata template fields the enrichment step consumes. Lookup is by
// exact name; absence is a data error.
const (
	FieldVendor        = "Vendor"
	FieldSubject       = "Subject"
	FieldProjectNumber = "Project Number/ID"
)

// Exporter is the slice of the repository client the orchestrator needs.
type Exporter interface {
	RequestBulkExport(ctx context.Context, entryIDs []int64) (string, error)
	PollExportStatus(ctx context.Context, token string) (*lfapi.ExportStatus, error)
	DownloadExport(ctx context.Context, token string) ([]byte, error)
	GetDocumentMetadata(ctx context.Context, entryID int64) (*lfapi.DocumentMetadata, error)
}

// RecordStore is the slice of the document repository the orchestrator
// needs.
type RecordStore interface {
	Get(ctx context.Context, id string) (*document.Record, error)
	UpdateEnrichment(ctx context.Context, id string, e *document.Enrichment) error
	ListPendingEnrichment(ctx context.Context) ([]*document.Record, error)
}

// BlobStore stores the downloaded PDF bytes.
type BlobStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Result reports the terminal state of one export job.
type Result struct {
	RecordID string
	EntryID  int64
	State    State
	PDFKey   string
	// Reason is set when State is StateFailed.
	Reason string
}

// Orchestrator drives the request -> poll -> download pipeline for a
// single document version at a time. Concurrent jobs share nothing but
// the persistence layer, which is keyed per record.
type Orchestrator struct {
	client  Exporter
	records RecordStore
	blobs   BlobStore
	cfg     config.ExportConfig
}

func New(client Exporter, records RecordStore, blobs BlobStore, cfg config.ExportConfig) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = 10 * time.Minute
	}
	return &Orchestrator{client: client, records: records, blobs: blobs, cfg: cfg}
}

// Export runs the full state machine for one record. A failed export
// leaves the record pending enrichment; it stays eligible for a later
// reconciliation pass. The returned error is non-nil only for
// infrastructure failures; vendor-reported failures and timeouts come
// back as a StateFailed result.
func (o *Orchestrator) Export(ctx context.Context, recordID string) (*Result, error) {
	started := time.Now()

	rec, err := o.records.Get(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("export %s: load record: %w", recordID, err)
	}
	res := &Result{RecordID: recordID, EntryID: rec.RepositoryID, State: StateRequested}

	token, err := o.client.RequestBulkExport(ctx, []int64{rec.RepositoryID})
	if err != nil {
		return o.fail(res, fmt.Sprintf("request export: %v", err)), nil
	}
	res.State = StatePolling
	logger.Debugf("export %s: token %s, polling", recordID, token)

	failReason, err := o.poll(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", recordID, err)
	}
	if failReason != "" {
		return o.fail(res, failReason), nil
	}

	pdf, err := o.client.DownloadExport(ctx, token)
	if err != nil {
		return o.fail(res, fmt.Sprintf("download: %v", err)), nil
	}

	md, err := o.client.GetDocumentMetadata(ctx, rec.RepositoryID)
	if err != nil {
		return o.fail(res, fmt.Sprintf("metadata: %v", err)), nil
	}
	enrichment, err := buildEnrichment(md)
	if err != nil {
		return o.fail(res, err.Error()), nil
	}

	key := storage.PDFKey(md.Metadata.Path, fmt.Sprintf("%s.pdf", md.Name))
	if o.blobs != nil {
		if _, err := o.blobs.Store(ctx, key, pdf, "application/pdf"); err != nil {
			return o.fail(res, fmt.Sprintf("store pdf: %v", err)), nil
		}
	}
	enrichment.PDFKey = key

	verifyPageCount(recordID, pdf, md.PageCount)

	if err := o.records.UpdateEnrichment(ctx, recordID, enrichment); err != nil {
		return nil, fmt.Errorf("export %s: persist enrichment: %w", recordID, err)
	}

	res.State = StateFinished
	res.PDFKey = key
	metrics.ExportsCompleted.WithLabelValues("finished").Inc()
	metrics.ExportDuration.Observe(time.Since(started).Seconds())
	logger.Infof("export %s: finished (%d pages, %d bytes)", recordID, md.PageCount, len(pdf))
	return res, nil
}

// poll watches the job until it finishes, the server reports an error,
// or the poll budget runs out. Cancellation and the budget are checked
// between polls, never mid-call.
func (o *Orchestrator) poll(ctx context.Context, token string) (string, error) {
	budget := time.NewTimer(o.cfg.PollBudget)
	defer budget.Stop()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := o.client.PollExportStatus(ctx, token)
		if err != nil {
			return fmt.Sprintf("poll: %v", err), nil
		}
		if msg := status.ErrorMessage.String(); msg != "" {
			return fmt.Sprintf("server reported: %s", msg), nil
		}
		if status.Finished {
			return "", nil
		}
		logger.Debugf("export token %s: %d%% complete", token, status.Completion)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-budget.C:
			return fmt.Sprintf("poll budget %s exceeded", o.cfg.PollBudget), nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) fail(res *Result, reason string) *Result {
	res.State = StateFailed
	res.Reason = reason
	metrics.ExportsCompleted.WithLabelValues("failed").Inc()
	logger.Errorf("export %s (entry %d): %s", res.RecordID, res.EntryID, reason)
	return res
}

func buildEnrichment(md *lfapi.DocumentMetadata) (*document.Enrichment, error) {
	vendor, err := md.Field(FieldVendor)
	if err != nil {
		return nil, err
	}
	subject, err := md.Field(FieldSubject)
	if err != nil {
		return nil, err
	}
	project, err := md.Field(FieldProjectNumber)
	if err != nil {
		return nil, err
	}
	return &document.Enrichment{
		Description:          subject,
		PageCount:            md.PageCount,
		TaggedCounterparty:   vendor,
		ProjectNumber:        project,
		RepositoryFolderPath: md.Metadata.Path,
	}, nil
}

// verifyPageCount cross-checks the vendor-reported page count against
// the downloaded bytes. Mismatches are logged, not fatal: bulk exports
// arrive as ZIP archives, which pdfcpu rejects outright.
func verifyPageCount(recordID string, pdf []byte, reported int) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(pdf), cfg)
	if err != nil {
		logger.Debugf("export %s: page count verification skipped: %v", recordID, err)
		return
	}
	if reported > 0 && n != reported {
		logger.Warnf("export %s: downloaded pdf has %d pages, metadata reports %d", recordID, n, reported)
	}
}
