// Package pipeline runs the batch passes over stored articles: embed,
// cluster, score and rewrite.
package pipeline

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
	"horse.fit/storyline/internal/ingest"
	"horse.fit/storyline/internal/rewrite"
	"horse.fit/storyline/internal/scoring"
	"horse.fit/storyline/internal/similarity"
	"horse.fit/storyline/internal/tuning"
)

const DefaultPassLimit = 500

type Store interface {
	ListArticlesMissingEmbedding(ctx context.Context, since time.Time, limit int) ([]db.ArticleRecord, error)
	ListUnclusteredArticles(ctx context.Context, since time.Time, limit int) ([]db.ArticleRecord, error)
	SetArticleEmbedding(ctx context.Context, articleID int64, vectorLiteral, model string, now time.Time) (bool, error)
}

type Scorer interface {
	Recompute(ctx context.Context, window scoring.Window) (scoring.Result, error)
}

type Rewriter interface {
	RewritePending(ctx context.Context, limit int) (rewrite.RunResult, error)
}

// Deps are the collaborators of a Service. Provider and Rewriter may be nil;
// the matching passes then do nothing.
type Deps struct {
	Store       Store
	Provider    embedding.Provider
	Clusterer   ingest.Clusterer
	Scorer      Scorer
	Rewriter    Rewriter
	Tuning      tuning.Tuning
	Concurrency int
}

type Service struct {
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
}

type EmbedResult struct {
	Processed int
	Embedded  int
	Skipped   int
	Failed    int
}

type ClusterResult struct {
	Processed   int
	Clustered   int
	Unclustered int
	Failed      int
	Decisions   map[cluster.Decision]int
}

type ProcessOptions struct {
	EmbedLimit   int
	ClusterLimit int
	RewriteLimit int
}

type ProcessResult struct {
	Embed   EmbedResult
	Cluster ClusterResult
	Score   scoring.Result
	Rewrite rewrite.RunResult
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	return &Service{deps: deps, logger: logger, now: clock.UTC}
}

// EmbedPending embeds recent articles that have no vector yet.
func (s *Service) EmbedPending(ctx context.Context, limit int) (EmbedResult, error) {
	if s == nil || s.deps.Store == nil {
		return EmbedResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	if s.deps.Provider == nil {
		s.logger.Info().Msg("no embedding provider configured, skipping embed pass")
		return EmbedResult{}, nil
	}
	limit = normalizeLimit(limit)

	since := s.now().Add(-s.deps.Tuning.Cluster.MaintenanceLookback)
	records, err := s.deps.Store.ListArticlesMissingEmbedding(ctx, since, limit)
	if err != nil {
		return EmbedResult{}, err
	}

	var (
		mu     sync.Mutex
		result = EmbedResult{Processed: len(records)}
	)
	run := batch.Run(ctx, records, s.deps.Concurrency, func(ctx context.Context, record db.ArticleRecord) error {
		vector, err := ingest.EmbedArticle(ctx, s.deps.Provider, record)
		if err != nil {
			return fmt.Errorf("embed article_id=%d: %w", record.ArticleID, err)
		}
		literal, err := similarity.Literal(vector)
		if err != nil {
			return fmt.Errorf("format embedding article_id=%d: %w", record.ArticleID, err)
		}
		stored, err := s.deps.Store.SetArticleEmbedding(ctx, record.ArticleID, literal, s.deps.Provider.Name(), s.now())
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if stored {
			result.Embedded++
		} else {
			result.Skipped++
		}
		return nil
	})
	result.Failed = run.Failed
	logItemErrors(s.logger, "embed", run)

	s.logger.Info().
		Int("processed", result.Processed).
		Int("embedded", result.Embedded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("embed pass complete")
	return result, nil
}

// ClusterPending retries clustering for recent articles without a
// membership. It is the maintenance pass for articles whose ingest-time
// assignment failed or found nothing.
func (s *Service) ClusterPending(ctx context.Context, limit int) (ClusterResult, error) {
	if s == nil || s.deps.Store == nil || s.deps.Clusterer == nil {
		return ClusterResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	limit = normalizeLimit(limit)

	since := s.now().Add(-s.deps.Tuning.Cluster.MaintenanceLookback)
	records, err := s.deps.Store.ListUnclusteredArticles(ctx, since, limit)
	if err != nil {
		return ClusterResult{}, err
	}

	var (
		mu     sync.Mutex
		result = ClusterResult{Processed: len(records), Decisions: map[cluster.Decision]int{}}
	)
	run := batch.Run(ctx, records, s.deps.Concurrency, func(ctx context.Context, record db.ArticleRecord) error {
		var vector []float64
		if record.Embedding != nil {
			parsed, err := similarity.ParseLiteral(*record.Embedding)
			if err != nil {
				return fmt.Errorf("parse embedding article_id=%d: %w", record.ArticleID, err)
			}
			vector = parsed
		}

		assignment, err := s.deps.Clusterer.AssignCluster(ctx, cluster.Article{
			ID:    record.ArticleID,
			UUID:  record.ArticleUUID,
			Title: record.Title,
		}, vector)
		if err != nil {
			return fmt.Errorf("cluster article_id=%d: %w", record.ArticleID, err)
		}

		mu.Lock()
		defer mu.Unlock()
		result.Decisions[assignment.Decision]++
		if assignment.Clustered {
			result.Clustered++
		} else {
			result.Unclustered++
		}
		return nil
	})
	result.Failed = run.Failed
	logItemErrors(s.logger, "cluster", run)

	s.logger.Info().
		Int("processed", result.Processed).
		Int("clustered", result.Clustered).
		Int("unclustered", result.Unclustered).
		Int("failed", result.Failed).
		Msg("cluster pass complete")
	return result, nil
}

// Score recomputes cluster scores over the configured window.
func (s *Service) Score(ctx context.Context) (scoring.Result, error) {
	if s == nil || s.deps.Scorer == nil {
		return scoring.Result{}, fmt.Errorf("pipeline service is not initialized")
	}
	result, err := s.deps.Scorer.Recompute(ctx, scoring.Window{Now: s.now()})
	if err != nil {
		return scoring.Result{}, err
	}
	s.logger.Info().
		Int("clusters", result.Clusters).
		Int("articles", result.Articles).
		Int("skipped", result.Skipped).
		Time("computed_at", result.ComputedAt).
		Msg("score pass complete")
	return result, nil
}

// RewritePending runs the headline rewrite pass.
func (s *Service) RewritePending(ctx context.Context, limit int) (rewrite.RunResult, error) {
	if s == nil {
		return rewrite.RunResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	if s.deps.Rewriter == nil {
		s.logger.Info().Msg("no rewrite generator configured, skipping rewrite pass")
		return rewrite.RunResult{}, nil
	}
	return s.deps.Rewriter.RewritePending(ctx, normalizeLimit(limit))
}

// Process runs embed, cluster, score and rewrite in order and stops at the
// first pass that fails as a whole.
func (s *Service) Process(ctx context.Context, opts ProcessOptions) (ProcessResult, error) {
	var (
		out ProcessResult
		err error
	)
	if out.Embed, err = s.EmbedPending(ctx, opts.EmbedLimit); err != nil {
		return out, fmt.Errorf("embed pass: %w", err)
	}
	if out.Cluster, err = s.ClusterPending(ctx, opts.ClusterLimit); err != nil {
		return out, fmt.Errorf("cluster pass: %w", err)
	}
	if out.Score, err = s.Score(ctx); err != nil {
		return out, fmt.Errorf("score pass: %w", err)
	}
	if out.Rewrite, err = s.RewritePending(ctx, opts.RewriteLimit); err != nil {
		return out, fmt.Errorf("rewrite pass: %w", err)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPassLimit
	}
	return limit
}

func logItemErrors(logger zerolog.Logger, pass string, run batch.Result) {
	for _, itemErr := range run.Errors {
		logger.Warn().Err(itemErr.Err).Str("pass", pass).Int("index", itemErr.Index).Msg("item failed")
	}
}
