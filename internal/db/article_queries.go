package db

import (
	"context"
	"fmt"
	"time"
)

type InsertArticleParams struct {
	SourceID     *int64
	Title        string
	CanonicalURL string
	PublishedAt  *time.Time
	FetchedAt    time.Time
	Dek          *string
	Author       *string
	BodyText     *string
	BodyStatus   *string
	Language     *string
}

// ArticleRecord is the slice of an article the batch passes work on.
type ArticleRecord struct {
	ArticleID    int64
	ArticleUUID  string
	SourceID     *int64
	Title        string
	CanonicalURL string
	PublishedAt  *time.Time
	FetchedAt    time.Time
	Dek          *string
	Author       *string
	BodyText     *string
	// Embedding is the pgvector text form, nil when not embedded yet.
	Embedding *string
}

// InsertArticle stores a new article keyed by canonical URL. A duplicate URL
// is not an error: the existing id is returned with inserted=false.
func (p *Pool) InsertArticle(ctx context.Context, params InsertArticleParams) (int64, bool, error) {
	const insertQ = `
INSERT INTO news.articles (
	source_id,
	title,
	canonical_url,
	published_at,
	fetched_at,
	dek,
	author,
	body_text,
	body_status,
	language
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (canonical_url) DO NOTHING
RETURNING article_id
`
	var articleID int64
	err := p.QueryRow(
		ctx,
		insertQ,
		params.SourceID,
		params.Title,
		params.CanonicalURL,
		params.PublishedAt,
		params.FetchedAt,
		params.Dek,
		params.Author,
		params.BodyText,
		params.BodyStatus,
		params.Language,
	).Scan(&articleID)
	if err == nil {
		return articleID, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("insert article url=%s: %w", params.CanonicalURL, err)
	}

	const selectQ = `SELECT article_id FROM news.articles WHERE canonical_url = $1`
	if err := p.QueryRow(ctx, selectQ, params.CanonicalURL).Scan(&articleID); err != nil {
		return 0, false, fmt.Errorf("select existing article url=%s: %w", params.CanonicalURL, err)
	}
	return articleID, false, nil
}

// SetArticleEmbedding stores the vector once; a second write is a no-op.
func (p *Pool) SetArticleEmbedding(ctx context.Context, articleID int64, vectorLiteral, model string, now time.Time) (bool, error) {
	const q = `
UPDATE news.articles
SET embedding = $2::vector,
    embedding_model = $3,
    embedded_at = $4
WHERE article_id = $1
  AND embedding IS NULL
`
	tag, err := p.Exec(ctx, q, articleID, vectorLiteral, model, now)
	if err != nil {
		return false, fmt.Errorf("set embedding article_id=%d: %w", articleID, err)
	}
	return tag.RowsAffected() == 1, nil
}

const articleRecordColumns = `
	a.article_id,
	a.article_uuid::text,
	a.source_id,
	a.title,
	a.canonical_url,
	a.published_at,
	a.fetched_at,
	a.dek,
	a.author,
	a.body_text,
	a.embedding::text
`

// GetArticle loads one article by id.
func (p *Pool) GetArticle(ctx context.Context, articleID int64) (ArticleRecord, error) {
	q := `SELECT` + articleRecordColumns + `FROM news.articles a WHERE a.article_id = $1`
	rec, err := scanArticleRecord(p.QueryRow(ctx, q, articleID))
	if err != nil {
		if IsNoRows(err) {
			return ArticleRecord{}, err
		}
		return ArticleRecord{}, fmt.Errorf("select article_id=%d: %w", articleID, err)
	}
	return rec, nil
}

// ListArticlesMissingEmbedding returns recent articles that were never embedded.
func (p *Pool) ListArticlesMissingEmbedding(ctx context.Context, since time.Time, limit int) ([]ArticleRecord, error) {
	q := `SELECT` + articleRecordColumns + `
FROM news.articles a
WHERE a.embedding IS NULL
  AND COALESCE(a.published_at, a.fetched_at) >= $1
ORDER BY a.article_id
LIMIT $2
`
	return p.listArticleRecords(ctx, "articles missing embedding", q, since, limit)
}

// ListUnclusteredArticles returns recent articles with no cluster membership.
func (p *Pool) ListUnclusteredArticles(ctx context.Context, since time.Time, limit int) ([]ArticleRecord, error) {
	q := `SELECT` + articleRecordColumns + `
FROM news.articles a
WHERE NOT EXISTS (
	SELECT 1
	FROM news.cluster_members cm
	WHERE cm.article_id = a.article_id
)
  AND COALESCE(a.published_at, a.fetched_at) >= $1
ORDER BY a.article_id
LIMIT $2
`
	return p.listArticleRecords(ctx, "unclustered articles", q, since, limit)
}

func (p *Pool) listArticleRecords(ctx context.Context, label, q string, args ...any) ([]ArticleRecord, error) {
	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", label, err)
	}
	defer rows.Close()

	var out []ArticleRecord
	for rows.Next() {
		rec, err := scanArticleRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticleRecord(row rowScanner) (ArticleRecord, error) {
	var rec ArticleRecord
	err := row.Scan(
		&rec.ArticleID,
		&rec.ArticleUUID,
		&rec.SourceID,
		&rec.Title,
		&rec.CanonicalURL,
		&rec.PublishedAt,
		&rec.FetchedAt,
		&rec.Dek,
		&rec.Author,
		&rec.BodyText,
		&rec.Embedding,
	)
	return rec, err
}
