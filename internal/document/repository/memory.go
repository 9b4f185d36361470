package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/civicdocs/docmirror/internal/document"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("document record not found")
	// ErrDuplicateVersion guards the (repositoryId, localVersion)
	// uniqueness invariant on create.
	ErrDuplicateVersion = errors.New("document version already exists")
)

// MemoryRepo is an in-memory version store used in unit tests. It
// mirrors the Mongo-backed repository's behavior, including the unique
// (repositoryId, localVersion) constraint.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]*document.Record
	byRepo map[int64][]*document.Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]*document.Record),
		byRepo: make(map[int64][]*document.Record),
	}
}

func (m *MemoryRepo) FindLatestVersion(ctx context.Context, repositoryID int64) (*document.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *document.Record
	for _, r := range m.byRepo[repositoryID] {
		if latest == nil || r.LocalVersion > latest.LocalVersion {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryRepo) CreateVersion(ctx context.Context, rec *document.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byRepo[rec.RepositoryID] {
		if r.LocalVersion == rec.LocalVersion {
			return "", fmt.Errorf("repository %d version %d: %w", rec.RepositoryID, rec.LocalVersion, ErrDuplicateVersion)
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.FirstScraped = now
	rec.LastUpdatedLocally = now
	cp := *rec
	m.byID[rec.ID] = &cp
	m.byRepo[rec.RepositoryID] = append(m.byRepo[rec.RepositoryID], &cp)
	return rec.ID, nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*document.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepo) UpdateEnrichment(ctx context.Context, id string, e *document.Enrichment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	r.Description = e.Description
	r.PageCount = e.PageCount
	r.TaggedCounterparty = e.TaggedCounterparty
	r.ProjectNumber = e.ProjectNumber
	r.RepositoryFolderPath = e.RepositoryFolderPath
	r.PDFKey = e.PDFKey
	r.EnrichedAt = &now
	r.LastUpdatedLocally = now
	return nil
}

func (m *MemoryRepo) ListPendingEnrichment(ctx context.Context) ([]*document.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*document.Record{}
	for _, rs := range m.byRepo {
		for _, r := range rs {
			if !r.Enriched() {
				cp := *r
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}
