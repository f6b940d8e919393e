package db

import (
	"context"
	"fmt"
	"strings"
)

type UpsertSourceParams struct {
	Slug     string
	Name     string
	Homepage *string
	Host     string
	// Weight applies only when the row is created; curated weights on
	// existing rows are left alone.
	Weight *float64
}

// UpsertSource creates the publisher row or refreshes its name and homepage,
// returning the source id either way.
func (p *Pool) UpsertSource(ctx context.Context, params UpsertSourceParams) (int64, error) {
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		return 0, fmt.Errorf("source slug is required")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = slug
	}
	var host *string
	if trimmed := strings.TrimSpace(params.Host); trimmed != "" {
		host = &trimmed
	}
	weight := 1.0
	if params.Weight != nil {
		weight = *params.Weight
	}

	const q = `
INSERT INTO news.sources (slug, name, homepage, host, weight)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (slug) DO UPDATE
SET name = EXCLUDED.name,
    homepage = COALESCE(EXCLUDED.homepage, news.sources.homepage),
    host = COALESCE(news.sources.host, EXCLUDED.host),
    updated_at = now()
RETURNING source_id
`
	var sourceID int64
	if err := p.QueryRow(ctx, q, slug, name, params.Homepage, host, weight).Scan(&sourceID); err != nil {
		return 0, fmt.Errorf("upsert source slug=%s: %w", slug, err)
	}
	return sourceID, nil
}
