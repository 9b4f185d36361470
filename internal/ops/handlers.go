package ops

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/civicdocs/docmirror/internal/crawl"
	"github.com/civicdocs/docmirror/internal/document"
	"github.com/civicdocs/docmirror/pkg/logger"
	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// CheckFunc pings one backing dependency.
type CheckFunc func(ctx context.Context) error

// CrawlLog exposes the most recent crawl audit record.
type CrawlLog interface {
	Latest(ctx context.Context) (*crawl.Crawl, error)
}

// RecordGetter loads one document record by id.
type RecordGetter interface {
	Get(ctx context.Context, id string) (*document.Record, error)
}

// BlobReader streams a stored object.
type BlobReader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "healthy")
}

// ReadyHandler reports per-dependency status plus the age of the most
// recent completed crawl. A missing crawl record is not a readiness
// failure; a fresh deployment has none.
func ReadyHandler(checks map[string]CheckFunc, crawls CrawlLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		deps := map[string]bool{}
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = false
				ready = false
			} else {
				deps[name] = true
			}
		}

		body := gin.H{"ready": ready, "deps": deps}
		if crawls != nil {
			last, err := crawls.Latest(ctx)
			if err != nil {
				logger.Warnf("ready: latest crawl lookup: %v", err)
			} else if last != nil {
				body["last_crawl"] = last.End.UTC().Format(time.RFC3339)
				body["last_crawl_age_seconds"] = int(time.Since(last.End).Seconds())
			}
		}

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, body)
	}
}

// DocumentPDFHandler streams the mirrored PDF for a record.
func DocumentPDFHandler(records RecordGetter, blobs BlobReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		rec, err := records.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		if rec.PDFKey == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "record has no stored pdf"})
			return
		}
		obj, err := blobs.Download(c.Request.Context(), rec.PDFKey)
		if err != nil {
			logger.Errorf("document %s: download %s: %v", id, rec.PDFKey, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "blob storage unavailable"})
			return
		}
		defer obj.Close()

		c.Header("Content-Type", "application/pdf")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, obj); err != nil {
			// status already written; nothing left but to log
			logger.Errorf("document %s: stream %s: %v", id, rec.PDFKey, err)
		}
	}
}
