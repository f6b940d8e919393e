package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	KeyKindTitle     = "title"
	KeyKindEmbedding = "embedding"
)

// NeighborQuery asks the similarity index for the closest recent articles.
type NeighborQuery struct {
	VectorLiteral    string
	Since            time.Time
	Floor            float64
	Limit            int
	ExcludeArticleID int64
	SearchEF         int
}

// Neighbor is one similarity index hit. ClusterID is nil when the neighbor
// has no membership yet.
type Neighbor struct {
	ArticleID  int64
	ClusterID  *int64
	Similarity float64
}

type ClusterKey struct {
	ClusterID int64
	Key       string
	CreatedAt time.Time
}

type Membership struct {
	ClusterID  int64
	ArticleID  int64
	MatchKind  string
	Similarity *float64
	MatchedAt  time.Time
}

type ClusterEvent struct {
	ArticleID      int64
	Strategy       string
	Decision       string
	ClusterID      *int64
	BestSimilarity *float64
	NeighborCount  int
	RepairedCount  int
	CreatedAt      time.Time
}

// NearestNeighbors ranks embedded articles by cosine similarity using the
// pgvector distance operator.
func (p *Pool) NearestNeighbors(ctx context.Context, query NeighborQuery) ([]Neighbor, error) {
	if query.Limit <= 0 {
		return nil, nil
	}

	stmt, args, err := neighborStatement(query)
	if err != nil {
		return nil, err
	}

	var neighbors []Neighbor
	err = p.WithTx(ctx, func(tx Tx) error {
		if query.SearchEF > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", query.SearchEF)); err != nil {
				return fmt.Errorf("set hnsw.ef_search: %w", err)
			}
		}

		rows, err := tx.Query(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("query nearest neighbors: %w", err)
		}
		defer rows.Close()

		neighbors = make([]Neighbor, 0, query.Limit)
		for rows.Next() {
			var n Neighbor
			if err := rows.Scan(&n.ArticleID, &n.ClusterID, &n.Similarity); err != nil {
				return fmt.Errorf("scan neighbor: %w", err)
			}
			neighbors = append(neighbors, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return neighbors, nil
}

func neighborStatement(query NeighborQuery) (string, []any, error) {
	vec := query.VectorLiteral
	stmt, args, err := psql.
		Select("a.article_id", "cm.cluster_id").
		Column(sq.Expr("(1 - (a.embedding <=> ?::vector))::DOUBLE PRECISION AS similarity", vec)).
		From("news.articles a").
		LeftJoin("news.cluster_members cm ON cm.article_id = a.article_id").
		Where("a.embedding IS NOT NULL").
		Where(sq.NotEq{"a.article_id": query.ExcludeArticleID}).
		Where(sq.Expr("COALESCE(a.published_at, a.fetched_at) >= ?", query.Since)).
		Where(sq.Expr("1 - (a.embedding <=> ?::vector) >= ?", vec, query.Floor)).
		OrderByClause("a.embedding <=> ?::vector ASC", vec).
		Limit(uint64(query.Limit)).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build neighbor query: %w", err)
	}
	return stmt, args, nil
}

// ArticleClusterTx returns the cluster an article already belongs to.
func ArticleClusterTx(ctx context.Context, q Querier, articleID int64) (int64, bool, error) {
	const stmt = `SELECT cluster_id FROM news.cluster_members WHERE article_id = $1 LIMIT 1`
	var clusterID int64
	if err := q.QueryRow(ctx, stmt, articleID).Scan(&clusterID); err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("select membership article_id=%d: %w", articleID, err)
	}
	return clusterID, true, nil
}

// ClusterIDByKeyTx resolves an exact cluster key.
func ClusterIDByKeyTx(ctx context.Context, q Querier, key string) (int64, bool, error) {
	const stmt = `SELECT cluster_id FROM news.clusters WHERE cluster_key = $1`
	var clusterID int64
	if err := q.QueryRow(ctx, stmt, key).Scan(&clusterID); err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("select cluster by key: %w", err)
	}
	return clusterID, true, nil
}

// TitleClusterKeysSinceTx lists title-keyed clusters created at or after since.
func TitleClusterKeysSinceTx(ctx context.Context, q Querier, since time.Time) ([]ClusterKey, error) {
	const stmt = `
SELECT cluster_id, cluster_key, created_at
FROM news.clusters
WHERE key_kind = 'title'
  AND created_at >= $1
ORDER BY cluster_id
`
	rows, err := q.Query(ctx, stmt, since)
	if err != nil {
		return nil, fmt.Errorf("select recent title clusters: %w", err)
	}
	defer rows.Close()

	var keys []ClusterKey
	for rows.Next() {
		var k ClusterKey
		if err := rows.Scan(&k.ClusterID, &k.Key, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan title cluster: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate title clusters: %w", err)
	}
	return keys, nil
}

// UpsertClusterTx returns the cluster for key, creating it when missing.
func UpsertClusterTx(ctx context.Context, q Querier, key, kind string, now time.Time) (int64, bool, error) {
	const insertQ = `
INSERT INTO news.clusters (cluster_key, key_kind, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (cluster_key) DO NOTHING
RETURNING cluster_id
`
	var clusterID int64
	err := q.QueryRow(ctx, insertQ, key, kind, now).Scan(&clusterID)
	if err == nil {
		return clusterID, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("insert cluster key=%s: %w", key, err)
	}

	clusterID, found, err := ClusterIDByKeyTx(ctx, q, key)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, fmt.Errorf("cluster key=%s vanished after conflict", key)
	}
	return clusterID, false, nil
}

// InsertMembershipTx adds an article to a cluster. It reports false when the
// article already had a membership.
func InsertMembershipTx(ctx context.Context, q Querier, m Membership) (bool, error) {
	const stmt = `
INSERT INTO news.cluster_members (cluster_id, article_id, match_kind, similarity, matched_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING
`
	tag, err := q.Exec(ctx, stmt, m.ClusterID, m.ArticleID, m.MatchKind, m.Similarity, m.MatchedAt)
	if err != nil {
		return false, fmt.Errorf("insert membership cluster_id=%d article_id=%d: %w", m.ClusterID, m.ArticleID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertClusterEventTx keeps the latest clustering decision per article.
func InsertClusterEventTx(ctx context.Context, q Querier, e ClusterEvent) error {
	const stmt = `
INSERT INTO news.cluster_events (
	article_id,
	strategy,
	decision,
	cluster_id,
	best_similarity,
	neighbor_count,
	repaired_count,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (article_id) DO UPDATE
SET strategy = EXCLUDED.strategy,
    decision = EXCLUDED.decision,
    cluster_id = EXCLUDED.cluster_id,
    best_similarity = EXCLUDED.best_similarity,
    neighbor_count = EXCLUDED.neighbor_count,
    repaired_count = EXCLUDED.repaired_count,
    created_at = EXCLUDED.created_at
`
	_, err := q.Exec(ctx, stmt, e.ArticleID, e.Strategy, e.Decision, e.ClusterID, e.BestSimilarity, e.NeighborCount, e.RepairedCount, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cluster event article_id=%d: %w", e.ArticleID, err)
	}
	return nil
}
