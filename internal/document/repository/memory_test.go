package repository

import (
	"context"
	"testing"
	"time"

	"github.com/civicdocs/docmirror/internal/document"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepoVersioning(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	_, err := r.FindLatestVersion(ctx, 188176)
	require.ErrorIs(t, err, ErrNotFound)

	id1, err := r.CreateVersion(ctx, &document.Record{
		RepositoryID:        188176,
		LocalVersion:        1,
		Title:               "Contract 36651 Volume 1",
		LastUpdatedOnRemote: time.Date(2020, 1, 6, 15, 45, 52, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// duplicate (repositoryId, localVersion) must be rejected
	_, err = r.CreateVersion(ctx, &document.Record{RepositoryID: 188176, LocalVersion: 1})
	require.ErrorIs(t, err, ErrDuplicateVersion)

	_, err = r.CreateVersion(ctx, &document.Record{
		RepositoryID:        188176,
		LocalVersion:        2,
		LastUpdatedOnRemote: time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	latest, err := r.FindLatestVersion(ctx, 188176)
	require.NoError(t, err)
	require.Equal(t, 2, latest.LocalVersion)
}

func TestMemoryRepoEnrichment(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	id, err := r.CreateVersion(ctx, &document.Record{RepositoryID: 5, LocalVersion: 1})
	require.NoError(t, err)

	pending, err := r.ListPendingEnrichment(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	err = r.UpdateEnrichment(ctx, id, &document.Enrichment{
		Description:          "Trinity River Pipeline Crossing",
		PageCount:            576,
		TaggedCounterparty:   "S.J. Louis Construction of Texas, Ltd.",
		ProjectNumber:        "00186",
		RepositoryFolderPath: "\\0 CS Records Management\\CONTRACTS",
		PDFKey:               "0 CS Records Management/CONTRACTS/doc.pdf",
	})
	require.NoError(t, err)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, got.Enriched())
	require.Equal(t, 576, got.PageCount)

	pending, err = r.ListPendingEnrichment(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	err = r.UpdateEnrichment(ctx, "missing", &document.Enrichment{})
	require.ErrorIs(t, err, ErrNotFound)
}
