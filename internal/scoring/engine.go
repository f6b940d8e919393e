// Package scoring ranks clusters and picks each cluster's lead article. A run
// replaces the whole score projection.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/storyline/internal/clock"
	"horse.fit/storyline/internal/db"
	"horse.fit/storyline/internal/textnorm"
	"horse.fit/storyline/internal/tuning"
)

var ErrLeadNotMember = errors.New("lead article is not a cluster member")

// Window selects which clusters are scored. Zero fields take the defaults.
type Window struct {
	Span time.Duration
	Now  time.Time
}

type Store interface {
	LoadScoringMembers(ctx context.Context, since, until time.Time) ([]db.ScoringMember, error)
	ReplaceClusterScores(ctx context.Context, rows []db.ClusterScoreRow, computedAt time.Time) error
}

type Result struct {
	Clusters   int
	Articles   int
	Skipped    int
	ComputedAt time.Time
	Rows       []db.ClusterScoreRow
}

type Engine struct {
	store  Store
	cfg    tuning.Scoring
	logger zerolog.Logger
}

func NewEngine(store Store, cfg tuning.Scoring, logger zerolog.Logger) *Engine {
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// Recompute scores every cluster with a member inside the window and swaps
// the stored scores for the new set. Running it twice over the same data and
// the same Window.Now writes identical rows.
func (e *Engine) Recompute(ctx context.Context, window Window) (Result, error) {
	if e == nil || e.store == nil {
		return Result{}, fmt.Errorf("scoring engine is not initialized")
	}
	if window.Span <= 0 {
		window.Span = e.cfg.Window
	}
	if window.Now.IsZero() {
		window.Now = clock.UTC()
	}
	now := window.Now.UTC()

	members, err := e.store.LoadScoringMembers(ctx, now.Add(-window.Span), now)
	if err != nil {
		return Result{}, fmt.Errorf("load scoring members: %w", err)
	}

	formula := NewFormula(e.cfg, window.Span, now)
	result := Result{ComputedAt: now}
	for _, group := range groupByCluster(members) {
		row, err := scoreCluster(formula, group.clusterID, group.articles)
		if err != nil {
			result.Skipped++
			e.logger.Warn().Err(err).Int64("cluster_id", group.clusterID).Msg("skip cluster score")
			continue
		}
		result.Rows = append(result.Rows, row)
		result.Articles += len(group.articles)
	}
	result.Clusters = len(result.Rows)

	if err := e.store.ReplaceClusterScores(ctx, result.Rows, now); err != nil {
		return Result{}, fmt.Errorf("replace cluster scores: %w", err)
	}
	return result, nil
}

type clusterGroup struct {
	clusterID int64
	articles  []ArticleInput
}

func groupByCluster(members []db.ScoringMember) []clusterGroup {
	byID := map[int64]*clusterGroup{}
	var order []int64
	for _, m := range members {
		g, ok := byID[m.ClusterID]
		if !ok {
			g = &clusterGroup{clusterID: m.ClusterID}
			byID[m.ClusterID] = g
			order = append(order, m.ClusterID)
		}
		g.articles = append(g.articles, ArticleInput{
			ArticleID:    m.ArticleID,
			Host:         textnorm.HostOf(m.CanonicalURL),
			Author:       m.Author,
			Dek:          m.Dek,
			PublishedAt:  m.PublishedAt,
			FetchedAt:    m.FetchedAt,
			SourceID:     m.SourceID,
			SourceWeight: m.SourceWeight,
		})
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]clusterGroup, 0, len(order))
	for _, id := range order {
		g := byID[id]
		sort.Slice(g.articles, func(i, j int) bool { return g.articles[i].ArticleID < g.articles[j].ArticleID })
		out = append(out, *g)
	}
	return out
}

func scoreCluster(formula Formula, clusterID int64, articles []ArticleInput) (db.ClusterScoreRow, error) {
	if len(articles) == 0 {
		return db.ClusterScoreRow{}, fmt.Errorf("cluster_id=%d has no members", clusterID)
	}

	scores := make([]float64, len(articles))
	for i, a := range articles {
		scores[i] = formula.ArticleScore(a)
	}
	lead := SelectLead(articles, scores)
	if err := checkLead(lead, articles); err != nil {
		return db.ClusterScoreRow{}, fmt.Errorf("cluster_id=%d: %w", clusterID, err)
	}

	terms := formula.Terms(articles, scores)
	return db.ClusterScoreRow{
		ClusterID:     clusterID,
		Size:          len(articles),
		Score:         formula.ClusterScore(terms),
		LeadArticleID: lead,
	}, nil
}

// SelectLead returns the article with the highest score. Ties go to the newer
// effective time, then the lower article id.
func SelectLead(articles []ArticleInput, scores []float64) int64 {
	best := -1
	for i := range articles {
		if best < 0 || leadBefore(articles[i], scores[i], articles[best], scores[best]) {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return articles[best].ArticleID
}

func leadBefore(a ArticleInput, scoreA float64, b ArticleInput, scoreB float64) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	atA, okA := a.EffectiveTime()
	atB, okB := b.EffectiveTime()
	if okA != okB {
		return okA
	}
	if okA && !atA.Equal(atB) {
		return atA.After(atB)
	}
	return a.ArticleID < b.ArticleID
}

func checkLead(lead int64, articles []ArticleInput) error {
	for _, a := range articles {
		if a.ArticleID == lead {
			return nil
		}
	}
	return fmt.Errorf("article_id=%d: %w", lead, ErrLeadNotMember)
}
