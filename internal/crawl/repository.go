package crawl

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists crawl audit records.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (s *MongoStore) Save(ctx context.Context, c *Crawl) error {
	if _, err := s.col.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("save crawl record: %w", err)
	}
	return nil
}

// Latest returns the most recent crawl record, or nil when none exist.
func (s *MongoStore) Latest(ctx context.Context) (*Crawl, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "start", Value: -1}})
	var c Crawl
	if err := s.col.FindOne(ctx, bson.M{}, opts).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("latest crawl: %w", err)
	}
	return &c, nil
}

// MemoryStore keeps crawl records in memory for tests.
type MemoryStore struct {
	mu     sync.Mutex
	crawls []*Crawl
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Save(ctx context.Context, c *Crawl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.crawls = append(s.crawls, &cp)
	return nil
}

func (s *MemoryStore) Latest(ctx context.Context) (*Crawl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.crawls) == 0 {
		return nil, nil
	}
	cp := *s.crawls[len(s.crawls)-1]
	return &cp, nil
}
