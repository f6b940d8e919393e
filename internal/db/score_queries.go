package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const scoreInsertChunk = 500

// ScoringMember is one article of one cluster, with the source data the
// scoring formula reads. Nullable columns stay nil.
type ScoringMember struct {
	ClusterID    int64
	ArticleID    int64
	CanonicalURL string
	Author       *string
	Dek          *string
	PublishedAt  *time.Time
	FetchedAt    time.Time
	SourceID     *int64
	SourceWeight *float64
}

type ClusterScoreRow struct {
	ClusterID     int64
	Size          int
	Score         float64
	LeadArticleID int64
}

// LoadScoringMembers returns every member of every cluster that has at least
// one article published inside [since, until].
func (p *Pool) LoadScoringMembers(ctx context.Context, since, until time.Time) ([]ScoringMember, error) {
	active := psql.
		Select("cm2.cluster_id").
		From("news.cluster_members cm2").
		Join("news.articles a2 ON a2.article_id = cm2.article_id").
		Where(sq.Expr("COALESCE(a2.published_at, a2.fetched_at) BETWEEN ? AND ?", since, until))

	activeSQL, activeArgs, err := active.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active cluster subquery: %w", err)
	}

	stmt, args, err := psql.
		Select(
			"cm.cluster_id",
			"a.article_id",
			"a.canonical_url",
			"a.author",
			"a.dek",
			"a.published_at",
			"a.fetched_at",
			"s.source_id",
			"s.weight",
		).
		From("news.cluster_members cm").
		Join("news.articles a ON a.article_id = cm.article_id").
		LeftJoin("news.sources s ON s.source_id = a.source_id").
		Where(sq.Expr("cm.cluster_id IN ("+activeSQL+")", activeArgs...)).
		OrderBy("cm.cluster_id", "a.article_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scoring member query: %w", err)
	}

	rows, err := p.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select scoring members: %w", err)
	}
	defer rows.Close()

	var members []ScoringMember
	for rows.Next() {
		var m ScoringMember
		if err := rows.Scan(
			&m.ClusterID,
			&m.ArticleID,
			&m.CanonicalURL,
			&m.Author,
			&m.Dek,
			&m.PublishedAt,
			&m.FetchedAt,
			&m.SourceID,
			&m.SourceWeight,
		); err != nil {
			return nil, fmt.Errorf("scan scoring member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoring members: %w", err)
	}
	return members, nil
}

// ReplaceClusterScores swaps the whole projection for rows in one transaction.
func (p *Pool) ReplaceClusterScores(ctx context.Context, rows []ClusterScoreRow, computedAt time.Time) error {
	return p.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM news.cluster_scores`); err != nil {
			return fmt.Errorf("clear cluster scores: %w", err)
		}

		for start := 0; start < len(rows); start += scoreInsertChunk {
			end := min(start+scoreInsertChunk, len(rows))

			insert := psql.
				Insert("news.cluster_scores").
				Columns("cluster_id", "size", "score", "lead_article_id", "computed_at")
			for _, row := range rows[start:end] {
				insert = insert.Values(row.ClusterID, row.Size, row.Score, row.LeadArticleID, computedAt)
			}
			stmt, args, err := insert.
				Suffix(`ON CONFLICT (cluster_id) DO UPDATE
SET size = EXCLUDED.size,
    score = EXCLUDED.score,
    lead_article_id = EXCLUDED.lead_article_id,
    computed_at = EXCLUDED.computed_at`).
				ToSql()
			if err != nil {
				return fmt.Errorf("build cluster score insert: %w", err)
			}
			if _, err := tx.Exec(ctx, stmt, args...); err != nil {
				return fmt.Errorf("insert cluster scores: %w", err)
			}
		}
		return nil
	})
}
