// Package ingest stores validated article payloads, embeds them and hands
// them to the clustering engine.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/storyline/internal/batch"
	"horse.fit/storyline/internal/clock"
	"horse.fit/storyline/internal/cluster"
	"horse.fit/storyline/internal/db"
	"horse.fit/storyline/internal/embedding"
	"horse.fit/storyline/internal/payloadschema"
	"horse.fit/storyline/internal/similarity"
)

type Store interface {
	UpsertSource(ctx context.Context, params db.UpsertSourceParams) (int64, error)
	InsertArticle(ctx context.Context, params db.InsertArticleParams) (int64, bool, error)
	SetArticleEmbedding(ctx context.Context, articleID int64, vectorLiteral, model string, now time.Time) (bool, error)
	GetArticle(ctx context.Context, articleID int64) (db.ArticleRecord, error)
}

type Clusterer interface {
	AssignCluster(ctx context.Context, article cluster.Article, embedding []float64) (cluster.Assignment, error)
}

type Service struct {
	store     Store
	provider  embedding.Provider
	clusterer Clusterer
	cache     *SourceCache
	logger    zerolog.Logger
	now       func() time.Time
}

// ItemResult describes what happened to one payload.
type ItemResult struct {
	ArticleID int64
	Inserted  bool
	Embedded  bool
	Clustered bool
	Decision  cluster.Decision
}

type BatchResult struct {
	Inserted    int
	Duplicates  int
	Clustered   int
	Unclustered int
	Failed      int
	Errors      []batch.ItemError
}

// NewService wires the ingest path. provider may be nil, in which case
// articles are stored without embeddings and cluster by title.
func NewService(store Store, provider embedding.Provider, clusterer Clusterer, cache *SourceCache, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NewSourceCache()
	}
	return &Service{
		store:     store,
		provider:  provider,
		clusterer: clusterer,
		cache:     cache,
		logger:    logger,
		now:       clock.UTC,
	}
}

// IngestBatch ingests articles with bounded concurrency. Per-item failures
// are counted and do not stop the batch.
func (s *Service) IngestBatch(ctx context.Context, articles []*payloadschema.Article, concurrency int) BatchResult {
	var (
		mu     sync.Mutex
		result BatchResult
	)
	run := batch.Run(ctx, articles, concurrency, func(ctx context.Context, article *payloadschema.Article) error {
		item, err := s.IngestArticle(ctx, article)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if item.Inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
		if item.Clustered {
			result.Clustered++
		} else {
			result.Unclustered++
		}
		return nil
	})
	result.Failed = run.Failed
	result.Errors = run.Errors
	return result
}

// IngestArticle stores one article. A duplicate canonical URL is not an
// error; the existing article is clustered if it is not already.
func (s *Service) IngestArticle(ctx context.Context, article *payloadschema.Article) (ItemResult, error) {
	if s == nil || s.store == nil || s.clusterer == nil {
		return ItemResult{}, fmt.Errorf("ingest service is not initialized")
	}
	if article == nil {
		return ItemResult{}, fmt.Errorf("article is nil")
	}

	articleID, inserted, err := s.insertWithSource(ctx, article)
	if err != nil {
		return ItemResult{}, err
	}
	result := ItemResult{ArticleID: articleID, Inserted: inserted}

	record, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return result, fmt.Errorf("load article_id=%d: %w", articleID, err)
	}

	vector, err := s.ensureEmbedding(ctx, record)
	if err != nil {
		return result, err
	}
	result.Embedded = vector != nil

	assignment, err := s.clusterer.AssignCluster(ctx, cluster.Article{
		ID:    record.ArticleID,
		UUID:  record.ArticleUUID,
		Title: record.Title,
	}, vector)
	if err != nil {
		return result, fmt.Errorf("cluster article_id=%d: %w", articleID, err)
	}
	result.Clustered = assignment.Clustered
	result.Decision = assignment.Decision

	s.logger.Debug().
		Int64("article_id", articleID).
		Bool("inserted", inserted).
		Bool("embedded", result.Embedded).
		Str("decision", string(assignment.Decision)).
		Msg("article ingested")
	return result, nil
}

func (s *Service) insertWithSource(ctx context.Context, article *payloadschema.Article) (int64, bool, error) {
	sourceID, cached, err := s.resolveSource(ctx, article)
	if err != nil {
		return 0, false, err
	}

	params := db.InsertArticleParams{
		SourceID:     &sourceID,
		Title:        article.Title,
		CanonicalURL: article.CanonicalURL,
		PublishedAt:  article.PublishedAt,
		FetchedAt:    s.now(),
		Dek:          article.Dek,
		Author:       article.Author,
		BodyText:     article.BodyText,
		Language:     article.Language,
	}
	if article.FetchedAt != nil {
		params.FetchedAt = *article.FetchedAt
	}
	if article.BodyText != nil {
		status := "provided"
		params.BodyStatus = &status
	}

	articleID, inserted, err := s.store.InsertArticle(ctx, params)
	if err != nil && cached && db.IsForeignKeyViolation(err) {
		s.logger.Warn().Str("source_slug", article.SourceSlug).Int64("source_id", sourceID).Msg("cached source id rejected, refreshing")
		s.cache.Forget(article.SourceSlug)
		if sourceID, _, err = s.resolveSource(ctx, article); err != nil {
			return 0, false, err
		}
		params.SourceID = &sourceID
		articleID, inserted, err = s.store.InsertArticle(ctx, params)
	}
	if err != nil {
		return 0, false, err
	}
	return articleID, inserted, nil
}

func (s *Service) resolveSource(ctx context.Context, article *payloadschema.Article) (int64, bool, error) {
	if id, ok := s.cache.Get(article.SourceSlug); ok {
		return id, true, nil
	}
	id, err := s.store.UpsertSource(ctx, db.UpsertSourceParams{
		Slug:     article.SourceSlug,
		Name:     article.SourceName,
		Homepage: article.SourceHomepage,
		Host:     article.Host,
		Weight:   article.SourceWeight,
	})
	if err != nil {
		return 0, false, err
	}
	s.cache.Put(article.SourceSlug, id)
	return id, false, nil
}

// ensureEmbedding returns the stored vector, or embeds the article when it
// has none. Provider failures degrade to a nil vector.
func (s *Service) ensureEmbedding(ctx context.Context, record db.ArticleRecord) ([]float64, error) {
	if record.Embedding != nil {
		vector, err := similarity.ParseLiteral(*record.Embedding)
		if err != nil {
			return nil, fmt.Errorf("parse stored embedding article_id=%d: %w", record.ArticleID, err)
		}
		return vector, nil
	}
	if s.provider == nil {
		return nil, nil
	}

	vector, err := EmbedArticle(ctx, s.provider, record)
	if err != nil {
		s.logger.Warn().Err(err).Int64("article_id", record.ArticleID).Str("provider", s.provider.Name()).Msg("embedding failed, clustering by title")
		return nil, nil
	}
	literal, err := similarity.Literal(vector)
	if err != nil {
		return nil, fmt.Errorf("format embedding article_id=%d: %w", record.ArticleID, err)
	}
	if _, err := s.store.SetArticleEmbedding(ctx, record.ArticleID, literal, s.provider.Name(), s.now()); err != nil {
		return nil, err
	}
	return vector, nil
}

// EmbedArticle embeds title, dek and body and returns a unit-length vector.
func EmbedArticle(ctx context.Context, provider embedding.Provider, record db.ArticleRecord) ([]float64, error) {
	input := embedding.Input(record.Title, deref(record.Dek), deref(record.BodyText))
	raw, err := provider.Embed(ctx, input)
	if err != nil {
		return nil, err
	}
	return similarity.Normalize(raw)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
