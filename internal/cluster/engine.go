// Package cluster assigns articles to stories. Articles with an embedding are
// matched against their nearest neighbors; the rest fall back to a textual
// title key.
package cluster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/storyline/internal/clock"
	"horse.fit/storyline/internal/db"
	"horse.fit/storyline/internal/similarity"
	"horse.fit/storyline/internal/textnorm"
	"horse.fit/storyline/internal/tuning"
)

type Strategy string

const (
	StrategyEmbedding Strategy = "embedding"
	StrategyTitle     Strategy = "title"
)

type Decision string

const (
	DecisionAlreadyClustered Decision = "already_clustered"
	DecisionJoined           Decision = "joined"
	DecisionSeeded           Decision = "seeded"
	DecisionNoNeighbors      Decision = "no_neighbors"
	DecisionTitleExact       Decision = "title_exact"
	DecisionTitleFuzzy       Decision = "title_fuzzy"
	DecisionTitleNew         Decision = "title_new"
	DecisionNoTitleKey       Decision = "no_title_key"
)

const (
	MatchSeed       = "seed"
	MatchNeighbor   = "neighbor"
	MatchRepair     = "repair"
	MatchTitleExact = "title_exact"
	MatchTitleFuzzy = "title_fuzzy"
	MatchTitleNew   = "title_new"
)

const embeddingKeyPrefix = "emb:"

// Article is the part of an article the engine needs.
type Article struct {
	ID    int64
	UUID  string
	Title string
}

// Assignment reports what happened to one article. Clustered is false for the
// no_neighbors and no_title_key outcomes.
type Assignment struct {
	ArticleID  int64
	ClusterID  int64
	Clustered  bool
	Decision   Decision
	Strategy   Strategy
	Similarity *float64
	Neighbors  int
	Repaired   int
	// Raced is set when a concurrent worker clustered the article first.
	Raced bool
}

// Store is the persistence surface of the engine. Reads outside WithTx must
// not hold a transaction open.
type Store interface {
	ArticleCluster(ctx context.Context, articleID int64) (int64, bool, error)
	NearestNeighbors(ctx context.Context, query db.NeighborQuery) ([]db.Neighbor, error)
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	ArticleCluster(ctx context.Context, articleID int64) (int64, bool, error)
	ClusterIDByKey(ctx context.Context, key string) (int64, bool, error)
	TitleClusterKeysSince(ctx context.Context, since time.Time) ([]db.ClusterKey, error)
	UpsertCluster(ctx context.Context, key, kind string, now time.Time) (int64, bool, error)
	InsertMembership(ctx context.Context, m db.Membership) (bool, error)
	InsertClusterEvent(ctx context.Context, e db.ClusterEvent) error
}

type Engine struct {
	store  Store
	tuning tuning.Cluster
	logger zerolog.Logger
	now    func() time.Time
}

func NewEngine(store Store, cfg tuning.Cluster, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		tuning: cfg,
		logger: logger,
		now:    clock.UTC,
	}
}

// strategy is one way of placing an article inside the write transaction.
type strategy interface {
	assign(ctx context.Context, tx Tx, article Article, now time.Time) (Assignment, error)
}

// AssignCluster places the article in exactly one cluster, or leaves it
// unclustered when nothing matches. It is idempotent: an article that already
// has a membership is reported as already_clustered without any write.
func (e *Engine) AssignCluster(ctx context.Context, article Article, embedding []float64) (Assignment, error) {
	if e == nil || e.store == nil {
		return Assignment{}, fmt.Errorf("cluster engine is not initialized")
	}
	if article.ID <= 0 {
		return Assignment{}, fmt.Errorf("article id is required")
	}

	if clusterID, found, err := e.store.ArticleCluster(ctx, article.ID); err != nil {
		return Assignment{}, err
	} else if found {
		return alreadyClustered(article, clusterID, embedding), nil
	}

	now := e.now()
	strat, err := e.selectStrategy(ctx, article, embedding, now)
	if err != nil {
		return Assignment{}, err
	}

	var out Assignment
	err = e.store.WithTx(ctx, func(tx Tx) error {
		if clusterID, found, err := tx.ArticleCluster(ctx, article.ID); err != nil {
			return err
		} else if found {
			out = alreadyClustered(article, clusterID, embedding)
			return nil
		}

		assigned, err := strat.assign(ctx, tx, article, now)
		if err != nil {
			return err
		}

		if assigned.Clustered {
			winner, found, err := tx.ArticleCluster(ctx, article.ID)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("article_id=%d has no membership after insert", article.ID)
			}
			if winner != assigned.ClusterID {
				assigned.ClusterID = winner
				assigned.Raced = true
			}
		}

		event := db.ClusterEvent{
			ArticleID:      article.ID,
			Strategy:       string(assigned.Strategy),
			Decision:       string(assigned.Decision),
			BestSimilarity: assigned.Similarity,
			NeighborCount:  assigned.Neighbors,
			RepairedCount:  assigned.Repaired,
			CreatedAt:      now,
		}
		if assigned.Clustered {
			event.ClusterID = &assigned.ClusterID
		}
		if err := tx.InsertClusterEvent(ctx, event); err != nil {
			return err
		}

		out = assigned
		return nil
	})
	if err != nil {
		return Assignment{}, fmt.Errorf("assign cluster article_id=%d: %w", article.ID, err)
	}

	e.logger.Debug().
		Int64("article_id", article.ID).
		Int64("cluster_id", out.ClusterID).
		Str("strategy", string(out.Strategy)).
		Str("decision", string(out.Decision)).
		Int("neighbors", out.Neighbors).
		Int("repaired", out.Repaired).
		Bool("raced", out.Raced).
		Msg("cluster decision")
	return out, nil
}

// selectStrategy runs the neighbor lookup up front so the write transaction
// never waits on a second connection.
func (e *Engine) selectStrategy(ctx context.Context, article Article, embedding []float64, now time.Time) (strategy, error) {
	if len(embedding) == 0 {
		return titleStrategy{cfg: e.tuning}, nil
	}

	literal, err := similarity.Literal(embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding article_id=%d: %w", article.ID, err)
	}
	neighbors, err := e.store.NearestNeighbors(ctx, db.NeighborQuery{
		VectorLiteral:    literal,
		Since:            now.Add(-e.tuning.NeighborWindow),
		Floor:            e.tuning.SimilarityFloor,
		Limit:            e.tuning.NeighborLimit,
		ExcludeArticleID: article.ID,
		SearchEF:         e.tuning.SearchEF,
	})
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors article_id=%d: %w", article.ID, err)
	}
	return embeddingStrategy{neighbors: neighbors}, nil
}

func alreadyClustered(article Article, clusterID int64, embedding []float64) Assignment {
	strat := StrategyTitle
	if len(embedding) > 0 {
		strat = StrategyEmbedding
	}
	return Assignment{
		ArticleID: article.ID,
		ClusterID: clusterID,
		Clustered: true,
		Decision:  DecisionAlreadyClustered,
		Strategy:  strat,
	}
}

type embeddingStrategy struct {
	neighbors []db.Neighbor
}

func (s embeddingStrategy) assign(ctx context.Context, tx Tx, article Article, now time.Time) (Assignment, error) {
	out := Assignment{
		ArticleID: article.ID,
		Strategy:  StrategyEmbedding,
		Neighbors: len(s.neighbors),
	}
	if len(s.neighbors) == 0 {
		out.Decision = DecisionNoNeighbors
		return out, nil
	}

	best, ok := bestClusteredNeighbor(s.neighbors)
	var (
		clusterID int64
		matchKind string
		sim       *float64
	)
	if ok {
		clusterID = *best.ClusterID
		matchKind = MatchNeighbor
		sim = floatPtr(best.Similarity)
		out.Decision = DecisionJoined
	} else {
		uuid := strings.TrimSpace(article.UUID)
		if uuid == "" {
			return Assignment{}, fmt.Errorf("article_id=%d has no uuid for a seed key", article.ID)
		}
		var err error
		clusterID, _, err = tx.UpsertCluster(ctx, embeddingKeyPrefix+uuid, db.KeyKindEmbedding, now)
		if err != nil {
			return Assignment{}, err
		}
		matchKind = MatchSeed
		out.Decision = DecisionSeeded
		if top, found := topNeighbor(s.neighbors); found {
			sim = floatPtr(top.Similarity)
		}
	}

	if _, err := tx.InsertMembership(ctx, db.Membership{
		ClusterID:  clusterID,
		ArticleID:  article.ID,
		MatchKind:  matchKind,
		Similarity: sim,
		MatchedAt:  now,
	}); err != nil {
		return Assignment{}, err
	}

	for _, n := range s.neighbors {
		if n.ClusterID != nil {
			continue
		}
		inserted, err := tx.InsertMembership(ctx, db.Membership{
			ClusterID:  clusterID,
			ArticleID:  n.ArticleID,
			MatchKind:  MatchRepair,
			Similarity: floatPtr(n.Similarity),
			MatchedAt:  now,
		})
		if err != nil {
			return Assignment{}, err
		}
		if inserted {
			out.Repaired++
		}
	}

	out.ClusterID = clusterID
	out.Clustered = true
	out.Similarity = sim
	return out, nil
}

// bestClusteredNeighbor picks the single most similar neighbor that already
// has a cluster. Equal similarity goes to the lower cluster id.
func bestClusteredNeighbor(neighbors []db.Neighbor) (db.Neighbor, bool) {
	var (
		best  db.Neighbor
		found bool
	)
	for _, n := range neighbors {
		if n.ClusterID == nil {
			continue
		}
		if !found ||
			n.Similarity > best.Similarity ||
			(n.Similarity == best.Similarity && *n.ClusterID < *best.ClusterID) {
			best = n
			found = true
		}
	}
	return best, found
}

func topNeighbor(neighbors []db.Neighbor) (db.Neighbor, bool) {
	var (
		top   db.Neighbor
		found bool
	)
	for _, n := range neighbors {
		if !found || n.Similarity > top.Similarity {
			top = n
			found = true
		}
	}
	return top, found
}

type titleStrategy struct {
	cfg tuning.Cluster
}

func (s titleStrategy) assign(ctx context.Context, tx Tx, article Article, now time.Time) (Assignment, error) {
	out := Assignment{
		ArticleID: article.ID,
		Strategy:  StrategyTitle,
	}

	key := textnorm.TitleKey(article.Title, s.cfg.TitleKeyMaxWords, s.cfg.TitleKeyMaxChars)
	if key == "" {
		out.Decision = DecisionNoTitleKey
		return out, nil
	}

	clusterID, found, err := tx.ClusterIDByKey(ctx, key)
	if err != nil {
		return Assignment{}, err
	}
	matchKind := MatchTitleExact
	out.Decision = DecisionTitleExact
	out.Similarity = floatPtr(1)

	if !found {
		candidates, err := tx.TitleClusterKeysSince(ctx, now.Add(-s.cfg.FuzzyKeyWindow))
		if err != nil {
			return Assignment{}, err
		}
		if match, score, ok := bestFuzzyKey(key, candidates, s.cfg.FuzzyKeyThreshold); ok {
			clusterID = match.ClusterID
			matchKind = MatchTitleFuzzy
			out.Decision = DecisionTitleFuzzy
			out.Similarity = floatPtr(score)
		} else {
			clusterID, _, err = tx.UpsertCluster(ctx, key, db.KeyKindTitle, now)
			if err != nil {
				return Assignment{}, err
			}
			matchKind = MatchTitleNew
			out.Decision = DecisionTitleNew
			out.Similarity = nil
		}
	}

	if _, err := tx.InsertMembership(ctx, db.Membership{
		ClusterID:  clusterID,
		ArticleID:  article.ID,
		MatchKind:  matchKind,
		Similarity: out.Similarity,
		MatchedAt:  now,
	}); err != nil {
		return Assignment{}, err
	}

	out.ClusterID = clusterID
	out.Clustered = true
	return out, nil
}

// bestFuzzyKey returns the candidate with the highest key similarity at or
// above threshold. Candidates arrive ordered by cluster id, so the first of
// equal scores wins.
func bestFuzzyKey(key string, candidates []db.ClusterKey, threshold float64) (db.ClusterKey, float64, bool) {
	var (
		best      db.ClusterKey
		bestScore float64
		found     bool
	)
	for _, c := range candidates {
		score := textnorm.KeySimilarity(key, c.Key)
		if score < threshold {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = c, score, true
		}
	}
	return best, bestScore, found
}

func floatPtr(v float64) *float64 {
	return &v
}
