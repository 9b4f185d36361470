package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/civicdocs/docmirror/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements the version store on a MongoDB collection. The
// unique compound index on (repositoryId, localVersion) makes version
// creation atomic: a duplicate insert fails instead of producing a
// second row, so readers never see a partial or conflicting version.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "repositoryId", Value: 1}, {Key: "localVersion", Value: -1}},
		Options: options.Index().SetUnique(true),
	}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoRepo{col: col}
}

func (m *MongoRepo) FindLatestVersion(ctx context.Context, repositoryID int64) (*document.Record, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "localVersion", Value: -1}})
	var r document.Record
	err := m.col.FindOne(ctx, bson.M{"repositoryId": repositoryID}, opts).Decode(&r)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find latest version: %w", err)
	}
	return &r, nil
}

func (m *MongoRepo) CreateVersion(ctx context.Context, rec *document.Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.FirstScraped = now
	rec.LastUpdatedLocally = now
	if _, err := m.col.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("repository %d version %d: %w", rec.RepositoryID, rec.LocalVersion, ErrDuplicateVersion)
		}
		return "", fmt.Errorf("create version: %w", err)
	}
	return rec.ID, nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Record, error) {
	var r document.Record
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &r, nil
}

func (m *MongoRepo) UpdateEnrichment(ctx context.Context, id string, e *document.Enrichment) error {
	now := time.Now().UTC()
	set := bson.M{
		"description":          e.Description,
		"pageCount":            e.PageCount,
		"taggedCounterparty":   e.TaggedCounterparty,
		"projectNumber":        e.ProjectNumber,
		"repositoryFolderPath": e.RepositoryFolderPath,
		"pdfKey":               e.PDFKey,
		"enrichedAt":           now,
		"lastUpdatedLocally":   now,
	}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) ListPendingEnrichment(ctx context.Context) ([]*document.Record, error) {
	cur, err := m.col.Find(ctx, bson.M{"enrichedAt": bson.M{"$exists": false}})
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer cur.Close(ctx)
	out := []*document.Record{}
	for cur.Next(ctx) {
		var r document.Record
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}
