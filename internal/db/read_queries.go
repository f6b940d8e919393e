package db

import (
	"context"
	"fmt"
	"time"
)

// StoreStats is the read model behind the stats endpoint.
type StoreStats struct {
	Articles       int64            `json:"articles"`
	Embedded       int64            `json:"embedded"`
	Clusters       int64            `json:"clusters"`
	Memberships    int64            `json:"memberships"`
	ScoredClusters int64            `json:"scored_clusters"`
	RewriteStatus  map[string]int64 `json:"rewrite_status"`
	ScoresAt       *time.Time       `json:"scores_computed_at,omitempty"`
}

// RankedCluster is one row of the ranked story list.
type RankedCluster struct {
	ClusterID     int64     `json:"cluster_id"`
	ClusterUUID   string    `json:"cluster_uuid"`
	Score         float64   `json:"score"`
	Size          int       `json:"size"`
	LeadArticleID int64     `json:"lead_article_id"`
	LeadTitle     string    `json:"lead_title"`
	LeadURL       string    `json:"lead_url"`
	Headline      string    `json:"headline"`
	ComputedAt    time.Time `json:"computed_at"`
}

type ClusterDetail struct {
	Cluster ClusterHeader `json:"cluster"`
	Items   []ClusterItem `json:"members"`
}

type ClusterHeader struct {
	ClusterID     int64      `json:"cluster_id"`
	ClusterUUID   string     `json:"cluster_uuid"`
	ClusterKey    string     `json:"cluster_key"`
	KeyKind       string     `json:"key_kind"`
	CreatedAt     time.Time  `json:"created_at"`
	Score         *float64   `json:"score,omitempty"`
	LeadArticleID *int64     `json:"lead_article_id,omitempty"`
	ComputedAt    *time.Time `json:"computed_at,omitempty"`
}

// ClusterItem is a member article within cluster detail output.
type ClusterItem struct {
	ArticleID      int64      `json:"article_id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Source         *string    `json:"source,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	MatchKind      string     `json:"match_kind"`
	Similarity     *float64   `json:"similarity,omitempty"`
	RewrittenTitle *string    `json:"rewritten_title,omitempty"`
	RewriteStatus  *string    `json:"rewrite_status,omitempty"`
	IsLead         bool       `json:"is_lead"`
}

// QueryStoreStats counts rows across the news schema.
func (p *Pool) QueryStoreStats(ctx context.Context) (*StoreStats, error) {
	gdb := p.GORM()
	if gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	gdb = gdb.WithContext(ctx)

	stats := &StoreStats{RewriteStatus: map[string]int64{}}
	counts := []struct {
		label string
		model any
		where string
		dest  *int64
	}{
		{label: "articles", model: &Article{}, dest: &stats.Articles},
		{label: "embedded articles", model: &Article{}, where: "embedding IS NOT NULL", dest: &stats.Embedded},
		{label: "clusters", model: &Cluster{}, dest: &stats.Clusters},
		{label: "memberships", model: &ClusterMember{}, dest: &stats.Memberships},
		{label: "cluster scores", model: &ClusterScore{}, dest: &stats.ScoredClusters},
	}
	for _, c := range counts {
		q := gdb.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", c.label, err)
		}
	}

	const statusQuery = `
SELECT COALESCE(rewrite_status, 'pending'), COUNT(*)::BIGINT
FROM news.articles
GROUP BY 1
ORDER BY 1
`
	rows, err := p.Query(ctx, statusQuery)
	if err != nil {
		return nil, fmt.Errorf("query rewrite status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan rewrite status row: %w", err)
		}
		stats.RewriteStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rewrite status rows: %w", err)
	}

	if err := p.QueryRow(ctx, `SELECT MAX(computed_at) FROM news.cluster_scores`).Scan(&stats.ScoresAt); err != nil {
		return nil, fmt.Errorf("query scores computed_at: %w", err)
	}
	return stats, nil
}

// ListRankedClusters returns scored clusters ordered by score. The headline
// is the accepted rewrite when there is one, the lead title otherwise.
func (p *Pool) ListRankedClusters(ctx context.Context, limit int) ([]RankedCluster, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	stmt, args, err := psql.
		Select(
			"cs.cluster_id",
			"c.cluster_uuid::text",
			"cs.score",
			"cs.size",
			"cs.lead_article_id",
			"a.title",
			"a.canonical_url",
			"CASE WHEN a.rewrite_status = 'accepted' THEN COALESCE(a.rewritten_title, a.title) ELSE a.title END",
			"cs.computed_at",
		).
		From("news.cluster_scores cs").
		Join("news.clusters c ON c.cluster_id = cs.cluster_id").
		Join("news.articles a ON a.article_id = cs.lead_article_id").
		OrderBy("cs.score DESC", "cs.cluster_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ranked cluster query: %w", err)
	}

	rows, err := p.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query ranked clusters: %w", err)
	}
	defer rows.Close()

	items := make([]RankedCluster, 0, limit)
	for rows.Next() {
		var rc RankedCluster
		if err := rows.Scan(
			&rc.ClusterID,
			&rc.ClusterUUID,
			&rc.Score,
			&rc.Size,
			&rc.LeadArticleID,
			&rc.LeadTitle,
			&rc.LeadURL,
			&rc.Headline,
			&rc.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ranked cluster: %w", err)
		}
		items = append(items, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranked clusters: %w", err)
	}
	return items, nil
}

// GetClusterDetail loads one cluster with all member articles. It returns
// ErrNoRows when the cluster does not exist.
func (p *Pool) GetClusterDetail(ctx context.Context, clusterID int64) (*ClusterDetail, error) {
	const headerQuery = `
SELECT
	c.cluster_id,
	c.cluster_uuid::text,
	c.cluster_key,
	c.key_kind,
	c.created_at,
	cs.score,
	cs.lead_article_id,
	cs.computed_at
FROM news.clusters c
LEFT JOIN news.cluster_scores cs
	ON cs.cluster_id = c.cluster_id
WHERE c.cluster_id = $1
`
	detail := &ClusterDetail{}
	h := &detail.Cluster
	if err := p.QueryRow(ctx, headerQuery, clusterID).Scan(
		&h.ClusterID,
		&h.ClusterUUID,
		&h.ClusterKey,
		&h.KeyKind,
		&h.CreatedAt,
		&h.Score,
		&h.LeadArticleID,
		&h.ComputedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query cluster_id=%d: %w", clusterID, err)
	}

	const membersQuery = `
SELECT
	a.article_id,
	a.title,
	a.canonical_url,
	s.name,
	a.published_at,
	cm.match_kind,
	cm.similarity,
	a.rewritten_title,
	a.rewrite_status
FROM news.cluster_members cm
JOIN news.articles a
	ON a.article_id = cm.article_id
LEFT JOIN news.sources s
	ON s.source_id = a.source_id
WHERE cm.cluster_id = $1
ORDER BY COALESCE(a.published_at, a.fetched_at) DESC, a.article_id
`
	rows, err := p.Query(ctx, membersQuery, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query members cluster_id=%d: %w", clusterID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item ClusterItem
		if err := rows.Scan(
			&item.ArticleID,
			&item.Title,
			&item.URL,
			&item.Source,
			&item.PublishedAt,
			&item.MatchKind,
			&item.Similarity,
			&item.RewrittenTitle,
			&item.RewriteStatus,
		); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		item.IsLead = h.LeadArticleID != nil && *h.LeadArticleID == item.ArticleID
		detail.Items = append(detail.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster members: %w", err)
	}
	return detail, nil
}
