package pagekit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

// These tests need a live server: PAGEKIT_TEST_MONGO_URI=mongodb://localhost:27017
func setupMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("PAGEKIT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PAGEKIT_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	coll := fmt.Sprintf("pagedatas_test_%d", time.Now().UnixNano())
	s, err := NewMongoStore(ctx, uri, "pagekit_test", coll)
	if err != nil {
		t.Fatalf("NewMongoStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.coll.Drop(context.Background())
		s.Close()
	})
	return s
}

func TestMongoSaveAndLoad(t *testing.T) {
	s := setupMongoStore(t)
	ctx := context.Background()

	if _, found, err := s.Load(ctx); err != nil || found {
		t.Fatalf("Load on empty collection: found=%v err=%v", found, err)
	}

	page := DefaultPageData()
	page.Hero.Title = "First"
	if err := s.Save(ctx, page); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	page.Hero.Title = "Second"
	if err := s.Save(ctx, page); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}

	raw, found, err := s.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	var got PageData
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("stored document is not PageData JSON: %v\n%s", err, raw)
	}
	if got.Hero.Title != "Second" {
		t.Errorf("Hero.Title = %q, want %q", got.Hero.Title, "Second")
	}
}

func TestMongoFetchOrCreate(t *testing.T) {
	s := setupMongoStore(t)
	svc := NewPageService(s, zaptest.NewLogger(t), nil)

	first, err := svc.FetchOrCreate(context.Background())
	if err != nil {
		t.Fatalf("FetchOrCreate failed: %v", err)
	}
	second, err := svc.FetchOrCreate(context.Background())
	if err != nil {
		t.Fatalf("FetchOrCreate failed: %v", err)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestMongoConcurrentFetchOrCreate(t *testing.T) {
	s := setupMongoStore(t)
	svc := NewPageService(s, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.FetchOrCreate(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("FetchOrCreate failed: %v", err)
	}

	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}
}

func TestMongoAdoptsLegacyDocument(t *testing.T) {
	s := setupMongoStore(t)
	ctx := context.Background()

	legacy := bson.M{"_id": primitive.NewObjectID(), "hero": bson.M{"title": "Legacy"}, "__v": 0}
	if _, err := s.coll.InsertOne(ctx, legacy); err != nil {
		t.Fatalf("InsertOne failed: %v", err)
	}
	if err := s.adoptLegacy(ctx); err != nil {
		t.Fatalf("adoptLegacy failed: %v", err)
	}

	raw, found, err := s.Load(ctx)
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	var got PageData
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Hero.Title != "Legacy" {
		t.Errorf("Hero.Title = %q, want %q", got.Hero.Title, "Legacy")
	}
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}
}
