package ingest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"horse.fit/storyline/internal/cluster"
	"horse.fit/storyline/internal/db"
	"horse.fit/storyline/internal/payloadschema"
	"horse.fit/storyline/internal/similarity"
)

type stubStore struct {
	mu            sync.Mutex
	sources       map[string]int64
	validSources  map[int64]bool
	upserts       int
	articles      map[string]db.ArticleRecord
	nextArticleID int64
}

func newStubStore() *stubStore {
	return &stubStore{
		sources:      map[string]int64{},
		validSources: map[int64]bool{},
		articles:     map[string]db.ArticleRecord{},
	}
}

func (s *stubStore) UpsertSource(_ context.Context, params db.UpsertSourceParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if id, ok := s.sources[params.Slug]; ok {
		return id, nil
	}
	id := int64(len(s.sources) + 100)
	s.sources[params.Slug] = id
	s.validSources[id] = true
	return id, nil
}

func (s *stubStore) InsertArticle(_ context.Context, params db.InsertArticleParams) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if params.SourceID != nil && !s.validSources[*params.SourceID] {
		return 0, false, fmt.Errorf("insert article: %w", &pgconn.PgError{Code: "23503"})
	}
	if rec, ok := s.articles[params.CanonicalURL]; ok {
		return rec.ArticleID, false, nil
	}
	s.nextArticleID++
	s.articles[params.CanonicalURL] = db.ArticleRecord{
		ArticleID:    s.nextArticleID,
		ArticleUUID:  fmt.Sprintf("00000000-0000-0000-0000-%012d", s.nextArticleID),
		SourceID:     params.SourceID,
		Title:        params.Title,
		CanonicalURL: params.CanonicalURL,
		FetchedAt:    params.FetchedAt,
		BodyText:     params.BodyText,
	}
	return s.nextArticleID, true, nil
}

func (s *stubStore) SetArticleEmbedding(_ context.Context, articleID int64, literal, _ string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for url, rec := range s.articles {
		if rec.ArticleID == articleID && rec.Embedding == nil {
			rec.Embedding = &literal
			s.articles[url] = rec
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) GetArticle(_ context.Context, articleID int64) (db.ArticleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.articles {
		if rec.ArticleID == articleID {
			return rec, nil
		}
	}
	return db.ArticleRecord{}, db.ErrNoRows
}

type stubProvider struct {
	err error
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Embed(context.Context, string) ([]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	v := make([]float64, similarity.Dimensions)
	v[0] = 3
	return v, nil
}

type stubClusterer struct {
	mu      sync.Mutex
	vectors map[int64][]float64
	calls   int
}

func (c *stubClusterer) AssignCluster(_ context.Context, article cluster.Article, embedding []float64) (cluster.Assignment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.vectors == nil {
		c.vectors = map[int64][]float64{}
	}
	c.vectors[article.ID] = embedding
	if embedding == nil {
		return cluster.Assignment{ArticleID: article.ID, Decision: cluster.DecisionTitleNew, Clustered: true, ClusterID: 1}, nil
	}
	return cluster.Assignment{ArticleID: article.ID, Decision: cluster.DecisionSeeded, Clustered: true, ClusterID: 2}, nil
}

func testArticle(url string) *payloadschema.Article {
	return &payloadschema.Article{
		Title:        "Storm closes coastal roads",
		CanonicalURL: url,
		Host:         "example.com",
		SourceName:   "Example",
		SourceSlug:   "example-com",
	}
}

func TestIngestBatchCountsAndCachesSources(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	clusterer := &stubClusterer{}
	svc := NewService(store, stubProvider{}, clusterer, nil, zerolog.Nop())

	articles := []*payloadschema.Article{
		testArticle("https://example.com/a"),
		testArticle("https://example.com/b"),
	}
	first := svc.IngestBatch(t.Context(), articles[:1], 2)
	second := svc.IngestBatch(t.Context(), append(articles[1:], testArticle("https://example.com/a")), 2)

	if first.Inserted != 1 || first.Clustered != 1 || first.Failed != 0 {
		t.Fatalf("unexpected first batch %+v", first)
	}
	if second.Inserted != 1 || second.Duplicates != 1 || second.Clustered != 2 {
		t.Fatalf("unexpected second batch %+v", second)
	}
	if store.upserts != 1 {
		t.Fatalf("expected the source cache to absorb repeat slugs, got %d upserts", store.upserts)
	}

	vector := clusterer.vectors[1]
	if len(vector) != similarity.Dimensions || vector[0] != 1 {
		t.Fatalf("expected a normalized embedding to reach the clusterer")
	}
	if store.articles["https://example.com/a"].Embedding == nil {
		t.Fatalf("expected the embedding to be stored")
	}
}

func TestSourceCacheWarmAndColdResolveSameSource(t *testing.T) {
	t.Parallel()

	wireArticle := func(url, slug string) *payloadschema.Article {
		a := testArticle(url)
		a.Host = "news.example.com"
		a.SourceName = slug
		a.SourceSlug = slug
		return a
	}

	warmStore := newStubStore()
	warm := NewService(warmStore, nil, &stubClusterer{}, NewSourceCache(), zerolog.Nop())
	for _, a := range []*payloadschema.Article{
		wireArticle("https://news.example.com/a", "wire-a"),
		wireArticle("https://news.example.com/b", "wire-b"),
	} {
		if _, err := warm.IngestArticle(t.Context(), a); err != nil {
			t.Fatalf("IngestArticle() error = %v", err)
		}
	}

	coldStore := newStubStore()
	for _, a := range []*payloadschema.Article{
		wireArticle("https://news.example.com/a", "wire-a"),
		wireArticle("https://news.example.com/b", "wire-b"),
	} {
		cold := NewService(coldStore, nil, &stubClusterer{}, NewSourceCache(), zerolog.Nop())
		if _, err := cold.IngestArticle(t.Context(), a); err != nil {
			t.Fatalf("IngestArticle() error = %v", err)
		}
	}

	if !reflect.DeepEqual(warmStore.sources, coldStore.sources) {
		t.Fatalf("warm sources %v differ from cold sources %v", warmStore.sources, coldStore.sources)
	}
	for url, cold := range coldStore.articles {
		warm := warmStore.articles[url]
		if warm.SourceID == nil || cold.SourceID == nil || *warm.SourceID != *cold.SourceID {
			t.Fatalf("%s: warm source %v, cold source %v", url, warm.SourceID, cold.SourceID)
		}
	}
	if len(warmStore.sources) != 2 {
		t.Fatalf("expected one source per slug, got %v", warmStore.sources)
	}
}

func TestIngestArticleEmbeddingFailureFallsBackToTitle(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	clusterer := &stubClusterer{}
	svc := NewService(store, stubProvider{err: errors.New("connection refused")}, clusterer, nil, zerolog.Nop())

	item, err := svc.IngestArticle(t.Context(), testArticle("https://example.com/a"))
	if err != nil {
		t.Fatalf("IngestArticle() error = %v", err)
	}
	if item.Embedded || item.Decision != cluster.DecisionTitleNew {
		t.Fatalf("expected title clustering without embedding, got %+v", item)
	}
	if clusterer.vectors[item.ArticleID] != nil {
		t.Fatalf("clusterer should receive a nil embedding")
	}
}

func TestIngestArticleRefreshesStaleCachedSource(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	cache := NewSourceCache()
	cache.Put("example-com", 999)
	svc := NewService(store, nil, &stubClusterer{}, cache, zerolog.Nop())

	item, err := svc.IngestArticle(t.Context(), testArticle("https://example.com/a"))
	if err != nil {
		t.Fatalf("IngestArticle() error = %v", err)
	}
	if !item.Inserted {
		t.Fatalf("expected insert after refreshing the source, got %+v", item)
	}
	if id, ok := cache.Get("EXAMPLE-com"); !ok || id != 100 {
		t.Fatalf("expected refreshed cache entry, got %d %t", id, ok)
	}
}

func TestSourceCacheForget(t *testing.T) {
	t.Parallel()

	cache := NewSourceCache()
	cache.Put(" Example-Com ", 7)
	cache.Put("ignored", 0)
	if id, ok := cache.Get("example-com"); !ok || id != 7 {
		t.Fatalf("Get() = %d, %t", id, ok)
	}
	if _, ok := cache.Get("ignored"); ok {
		t.Fatalf("non-positive ids must not be cached")
	}
	cache.Forget("example-com")
	if _, ok := cache.Get("example-com"); ok {
		t.Fatalf("expected entry to be forgotten")
	}
}

func TestIngestArticleRequiresWiring(t *testing.T) {
	t.Parallel()

	var svc *Service
	if _, err := svc.IngestArticle(t.Context(), testArticle("https://example.com/a")); err == nil {
		t.Fatalf("expected nil service error")
	}
}
