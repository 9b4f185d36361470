package crawl

import (
	"time"

	"github.com/civicdocs/docmirror/internal/lfapi"
)

// FolderEntry is a folder discovered during a crawl. Folders only exist
// within a snapshot; they are not versioned or persisted on their own.
type FolderEntry struct {
	EntryID  int64  `json:"entryId"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentId"`
}

// Snapshot is the flat inventory produced by one full traversal of the
// remote tree. It is assembled in memory and sealed when the crawl
// finishes; nothing mutates it afterwards.
type Snapshot struct {
	ID        string         `json:"id"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	RootID    int64          `json:"rootId"`
	Folders   []*FolderEntry `json:"folders"`
	Documents []*lfapi.Entry `json:"documents"`
}

// Crawl is the persisted audit record of one snapshot. The full
// inventory JSON lives in blob storage under ResultsKey.
type Crawl struct {
	ID            string    `json:"id" bson:"_id,omitempty"`
	Start         time.Time `json:"start" bson:"start"`
	End           time.Time `json:"end" bson:"end"`
	RootID        int64     `json:"rootId" bson:"rootId"`
	ResultsKey    string    `json:"resultsKey" bson:"resultsKey"`
	FolderCount   int       `json:"folderCount" bson:"folderCount"`
	DocumentCount int       `json:"documentCount" bson:"documentCount"`
}
