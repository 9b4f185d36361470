package document

import "time"

// Record is one persisted version of a remote document. Versions of the
// same remote document share RepositoryID and are distinguished by
// LocalVersion, a dense sequence starting at 1. A remote update appends
// a new version row; existing rows are never rewritten. The row with
// the greatest LocalVersion is current.
type Record struct {
	ID           string `json:"id" bson:"_id,omitempty"`
	RepositoryID int64  `json:"repositoryId" bson:"repositoryId"`
	LocalVersion int    `json:"localVersion" bson:"localVersion"`

	Title string `json:"title" bson:"title"`

	// Enrichment fields, filled in after the export pipeline completes.
	// Until then the record sits in a pending-enrichment state.
	Description          string `json:"description" bson:"description"`
	PageCount            int    `json:"pageCount" bson:"pageCount"`
	TaggedCounterparty   string `json:"taggedCounterparty" bson:"taggedCounterparty"`
	ProjectNumber        string `json:"projectNumber" bson:"projectNumber"`
	RepositoryFolderPath string `json:"repositoryFolderPath" bson:"repositoryFolderPath"`
	PDFKey               string `json:"pdfKey,omitempty" bson:"pdfKey,omitempty"`

	// RepositoryURL points back at the source viewer page.
	RepositoryURL string `json:"repositoryUrl" bson:"repositoryUrl"`

	// SourceJSON keeps the raw listing entry the record was created from.
	SourceJSON string `json:"sourceJson,omitempty" bson:"sourceJson,omitempty"`

	FirstScraped        time.Time  `json:"firstScraped" bson:"firstScraped"`
	LastUpdatedLocally  time.Time  `json:"lastUpdatedLocally" bson:"lastUpdatedLocally"`
	LastUpdatedOnRemote time.Time  `json:"lastUpdatedOnRemote" bson:"lastUpdatedOnRemote"`
	EnrichedAt          *time.Time `json:"enrichedAt,omitempty" bson:"enrichedAt,omitempty"`
}

// Enriched reports whether the export pipeline has completed for this
// version.
func (r *Record) Enriched() bool { return r.EnrichedAt != nil }

// Enrichment carries the fields written when an export finishes.
type Enrichment struct {
	Description          string
	PageCount            int
	TaggedCounterparty   string
	ProjectNumber        string
	RepositoryFolderPath string
	PDFKey               string
}
