package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/civicdocs/docmirror/internal/config"
	"github.com/civicdocs/docmirror/internal/crawl"
	"github.com/civicdocs/docmirror/internal/lfapi"
	"github.com/stretchr/testify/require"
)

type window struct {
	folderID   int64
	start, end int
}

// fakeLister serves listings from an in-memory tree and records the
// exact page windows requested.
type fakeLister struct {
	mu      sync.Mutex
	entries map[int64][]*lfapi.Entry
	calls   []window
	failing map[int64]string
}

func (f *fakeLister) ListFolder(ctx context.Context, folderID int64, start, end int) (*lfapi.ListingPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, window{folderID, start, end})
	f.mu.Unlock()

	if msg, ok := f.failing[folderID]; ok {
		return nil, &lfapi.ListingFailedError{FolderID: folderID, ErrMsg: msg}
	}

	all := f.entries[folderID]
	lo, hi := start, end
	if lo > len(all) {
		lo = len(all)
	}
	if hi > len(all) {
		hi = len(all)
	}
	return &lfapi.ListingPage{
		FolderID:     folderID,
		TotalEntries: len(all),
		Results:      all[lo:hi],
	}, nil
}

func doc(id int64, name string) *lfapi.Entry {
	return &lfapi.Entry{EntryID: id, Name: name, TargetType: 0, Type: -1}
}

func folder(id int64, name string) *lfapi.Entry {
	return &lfapi.Entry{EntryID: id, Name: name, TargetType: 0, Type: 0}
}

func shortcut(id int64, name string) *lfapi.Entry {
	return &lfapi.Entry{EntryID: id, Name: name, TargetType: 0, Type: -7}
}

func testCrawler(l Lister) *Crawler {
	return New(l, nil, nil, config.CrawlConfig{PageSize: 40, PageDelay: 0, MaxDepth: 16})
}

func TestPaginationTwoPagesAt45Entries(t *testing.T) {
	entries := make([]*lfapi.Entry, 0, 45)
	for i := 0; i < 45; i++ {
		entries = append(entries, doc(int64(1000+i), fmt.Sprintf("Doc %d", i)))
	}
	l := &fakeLister{entries: map[int64][]*lfapi.Entry{1: entries}}

	snap, err := testCrawler(l).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snap.Documents, 45)
	require.Empty(t, snap.Folders)

	require.Equal(t, []window{{1, 0, 40}, {1, 40, 80}}, l.calls)

	// no duplicates across the page boundary
	seen := map[int64]bool{}
	for _, d := range snap.Documents {
		require.False(t, seen[d.EntryID], "duplicate entry %d", d.EntryID)
		seen[d.EntryID] = true
	}
}

func TestPaginationSinglePageAtExactBoundary(t *testing.T) {
	entries := make([]*lfapi.Entry, 0, 40)
	for i := 0; i < 40; i++ {
		entries = append(entries, doc(int64(i), fmt.Sprintf("Doc %d", i)))
	}
	l := &fakeLister{entries: map[int64][]*lfapi.Entry{1: entries}}

	snap, err := testCrawler(l).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snap.Documents, 40)
	// T == P: exactly one page, no trailing empty fetch
	require.Equal(t, []window{{1, 0, 40}}, l.calls)
}

func TestPaginationEmptyFolder(t *testing.T) {
	l := &fakeLister{entries: map[int64][]*lfapi.Entry{1: {}}}
	snap, err := testCrawler(l).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, snap.Documents)
	require.Len(t, l.calls, 1)
}

func TestRecursionCollectsFullTreeDeterministically(t *testing.T) {
	l := &fakeLister{entries: map[int64][]*lfapi.Entry{
		1:  {folder(10, "A"), folder(20, "B"), doc(100, "root doc")},
		10: {doc(101, "a1"), doc(102, "a2")},
		20: {folder(30, "B/C"), doc(103, "b1")},
		30: {doc(104, "c1")},
	}}

	snap, err := testCrawler(l).Run(context.Background(), 1)
	require.NoError(t, err)

	var folderIDs []int64
	for _, f := range snap.Folders {
		folderIDs = append(folderIDs, f.EntryID)
	}
	var docIDs []int64
	for _, d := range snap.Documents {
		docIDs = append(docIDs, d.EntryID)
	}

	// depth-first pre-order: root, A, then B and its child C
	require.Equal(t, []int64{10, 20, 30}, folderIDs)
	require.Equal(t, []int64{100, 101, 102, 103, 104}, docIDs)

	// parent ids recorded from the traversal, not the listing
	require.EqualValues(t, 20, snap.Folders[2].ParentID)

	// a second run over the same tree yields the same order
	l2 := &fakeLister{entries: l.entries}
	snap2, err := testCrawler(l2).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, snap.Documents, snap2.Documents)
}

func TestAnomalousEntriesAreSkippedNotFatal(t *testing.T) {
	l := &fakeLister{entries: map[int64][]*lfapi.Entry{
		1: {doc(100, "d"), shortcut(188177, "Contract 36651 Volume 1"), nil, folder(10, "A")},
		10: {},
	}}

	snap, err := testCrawler(l).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snap.Documents, 1)
	require.Len(t, snap.Folders, 1)
}

func TestShortcutFolderListingFailureContinuesCrawl(t *testing.T) {
	l := &fakeLister{
		entries: map[int64][]*lfapi.Entry{
			1:  {folder(10, "bad"), folder(20, "good")},
			20: {doc(103, "survives")},
		},
		failing: map[int64]string{10: "Mismatched entry type; the actual type is Shortcut. [9001]"},
	}

	snap, err := testCrawler(l).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snap.Documents, 1)
	require.EqualValues(t, 103, snap.Documents[0].EntryID)
}

func TestCyclicTreeTerminates(t *testing.T) {
	l := &fakeLister{entries: map[int64][]*lfapi.Entry{
		1:  {folder(10, "A")},
		10: {folder(1, "back to root"), doc(100, "d")},
	}}

	snap, err := testCrawler(l).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snap.Documents, 1)
	require.Len(t, snap.Folders, 2)
}

type fakeBlobs struct {
	mu   sync.Mutex
	keys []string
	data map[string][]byte
}

func (f *fakeBlobs) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.keys = append(f.keys, key)
	f.data[key] = data
	return "minio://" + key, nil
}

func TestSnapshotPersistedAtEndOfCrawl(t *testing.T) {
	l := &fakeLister{entries: map[int64][]*lfapi.Entry{1: {doc(100, "d")}}}
	blobs := &fakeBlobs{}
	records := crawl.NewMemoryStore()

	c := New(l, blobs, records, config.CrawlConfig{PageSize: 40})
	snap, err := c.Run(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, snap.End.IsZero())

	require.Len(t, blobs.keys, 1)
	require.Contains(t, blobs.keys[0], "crawls/crawl_")

	rec, err := records.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, snap.ID, rec.ID)
	require.Equal(t, 1, rec.DocumentCount)
	require.Equal(t, blobs.keys[0], rec.ResultsKey)
}
