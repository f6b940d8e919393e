package db

import (
	"context"
	"fmt"
	"time"
)

const (
	RewriteStatusAccepted = "accepted"
	RewriteStatusRejected = "rejected"
	RewriteStatusSkipped  = "skipped"
	// RewriteStatusFailed is only ever an event status; the article row stays
	// pending so the next run retries it.
	RewriteStatusFailed = "failed"
)

// RewriteCandidate is a lead article waiting for a headline rewrite.
type RewriteCandidate struct {
	ArticleID int64
	ClusterID int64
	Title     string
	Dek       *string
	BodyText  *string
	Score     float64
}

type RewriteOutcome struct {
	ArticleID int64
	Generator string
	Status    string
	Candidate *string
	Reason    *string
	At        time.Time
}

// ListRewriteCandidates returns the leads of scored clusters that have no
// rewrite decision yet, best clusters first.
func (p *Pool) ListRewriteCandidates(ctx context.Context, limit int) ([]RewriteCandidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	stmt, args, err := psql.
		Select("a.article_id", "cs.cluster_id", "a.title", "a.dek", "a.body_text", "cs.score").
		From("news.cluster_scores cs").
		Join("news.articles a ON a.article_id = cs.lead_article_id").
		Where("a.rewrite_status IS NULL").
		OrderBy("cs.score DESC", "cs.cluster_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rewrite candidate query: %w", err)
	}

	rows, err := p.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select rewrite candidates: %w", err)
	}
	defer rows.Close()

	var out []RewriteCandidate
	for rows.Next() {
		var c RewriteCandidate
		if err := rows.Scan(&c.ArticleID, &c.ClusterID, &c.Title, &c.Dek, &c.BodyText, &c.Score); err != nil {
			return nil, fmt.Errorf("scan rewrite candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rewrite candidates: %w", err)
	}
	return out, nil
}

// RecordRewriteOutcome writes the article decision (once) and its audit
// event in one transaction. Failed attempts only add the event. The returned
// bool is false when another run already decided the article.
func (p *Pool) RecordRewriteOutcome(ctx context.Context, outcome RewriteOutcome) (bool, error) {
	applied := false
	err := p.WithTx(ctx, func(tx Tx) error {
		if outcome.Status != RewriteStatusFailed {
			var err error
			applied, err = applyRewriteDecisionTx(ctx, tx, outcome)
			if err != nil {
				return err
			}
			if !applied {
				return nil
			}
		}
		return InsertRewriteEventTx(ctx, tx, outcome)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func applyRewriteDecisionTx(ctx context.Context, q Querier, outcome RewriteOutcome) (bool, error) {
	var rewritten *string
	if outcome.Status == RewriteStatusAccepted {
		rewritten = outcome.Candidate
	}

	const stmt = `
UPDATE news.articles
SET rewritten_title = $2,
    rewrite_generator = $3,
    rewrite_status = $4,
    rewrite_notes = $5,
    rewritten_at = $6
WHERE article_id = $1
  AND rewrite_status IS NULL
`
	tag, err := q.Exec(ctx, stmt, outcome.ArticleID, rewritten, outcome.Generator, outcome.Status, outcome.Reason, outcome.At)
	if err != nil {
		return false, fmt.Errorf("update rewrite status article_id=%d: %w", outcome.ArticleID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func InsertRewriteEventTx(ctx context.Context, q Querier, outcome RewriteOutcome) error {
	const stmt = `
INSERT INTO news.rewrite_events (article_id, generator, candidate, status, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	if _, err := q.Exec(ctx, stmt, outcome.ArticleID, outcome.Generator, outcome.Candidate, outcome.Status, outcome.Reason, outcome.At); err != nil {
		return fmt.Errorf("insert rewrite event article_id=%d: %w", outcome.ArticleID, err)
	}
	return nil
}
