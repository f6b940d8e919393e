package scoring

import (
	"math"
	"strconv"
	"strings"
	"time"

	"horse.fit/storyline/internal/textnorm"
	"horse.fit/storyline/internal/tuning"
)

const (
	minDecayExponent = -50.0
	maxDecayExponent = 0.0
)

// ArticleInput is one member article as the formula sees it. Nil fields
// contribute nothing.
type ArticleInput struct {
	ArticleID    int64
	Host         string
	Author       *string
	Dek          *string
	PublishedAt  *time.Time
	FetchedAt    time.Time
	SourceID     *int64
	SourceWeight *float64
}

// EffectiveTime is the publish time, falling back to the fetch time.
func (a ArticleInput) EffectiveTime() (time.Time, bool) {
	if a.PublishedAt != nil && !a.PublishedAt.IsZero() {
		return *a.PublishedAt, true
	}
	if !a.FetchedAt.IsZero() {
		return a.FetchedAt, true
	}
	return time.Time{}, false
}

func (a ArticleInput) weight() float64 {
	if a.SourceWeight == nil || math.IsNaN(*a.SourceWeight) {
		return 0
	}
	return *a.SourceWeight
}

// Freshness decays from 1 at age zero, halving every halfLifeHours. Future
// timestamps count as age zero; the exponent is clamped so very old items
// bottom out instead of underflowing.
func Freshness(age time.Duration, halfLifeHours float64) float64 {
	if halfLifeHours <= 0 {
		return 0
	}
	if age < 0 {
		age = 0
	}
	exponent := -math.Ln2 * age.Seconds() / (halfLifeHours * 3600)
	return math.Exp(clamp(exponent, minDecayExponent, maxDecayExponent))
}

// Formula evaluates article and cluster scores for one window.
type Formula struct {
	cfg  tuning.Scoring
	span time.Duration
	now  time.Time
}

func NewFormula(cfg tuning.Scoring, span time.Duration, now time.Time) Formula {
	return Formula{cfg: cfg, span: span, now: now}
}

// FreshnessWeight grows from the base weight toward the max as the window
// tightens below TightWindowHours.
func (f Formula) FreshnessWeight() float64 {
	spanHours := f.span.Hours()
	w := f.cfg.BaseFreshnessWeight + (f.cfg.MaxFreshnessWeight-f.cfg.BaseFreshnessWeight)*(1-spanHours/f.cfg.TightWindowHours)
	return clamp(w, f.cfg.BaseFreshnessWeight, f.cfg.MaxFreshnessWeight)
}

func (f Formula) ArticleFreshness(a ArticleInput) float64 {
	at, ok := a.EffectiveTime()
	if !ok {
		return 0
	}
	return Freshness(f.now.Sub(at), f.cfg.ArticleHalfLifeHours)
}

func (f Formula) ArticleQuality(a ArticleInput) float64 {
	quality := a.weight()
	if a.Author != nil && strings.TrimSpace(*a.Author) != "" {
		quality += f.cfg.AuthorBonus
	}
	if a.Dek != nil && len([]rune(strings.TrimSpace(*a.Dek))) >= f.cfg.DekMinChars {
		quality += f.cfg.DekBonus
	}
	if hostIn(a.Host, f.cfg.AggregatorHosts) {
		quality -= f.cfg.AggregatorPenalty
	}
	if hostIn(a.Host, f.cfg.PressWireHosts) {
		quality -= f.cfg.PressWirePenalty
	}
	return quality
}

func (f Formula) ArticleScore(a ArticleInput) float64 {
	fw := f.FreshnessWeight()
	return (1-fw)*f.ArticleQuality(a) + fw*f.ArticleFreshness(a)
}

// ClusterTerms are the unweighted components of a cluster score.
type ClusterTerms struct {
	TotalSourceWeight float64
	DistinctSources   int
	Members           int
	RecentMembers     int
	Freshness         float64
	AverageWeight     float64
	PooledScore       float64
}

func (f Formula) Terms(members []ArticleInput, articleScores []float64) ClusterTerms {
	var (
		terms   ClusterTerms
		newest  time.Time
		hasTime bool
		sources = map[string]struct{}{}
	)
	recentSince := f.now.Add(-f.cfg.VelocityWindow)

	for i, m := range members {
		terms.Members++
		terms.TotalSourceWeight += m.weight()
		if key := sourceKey(m); key != "" {
			sources[key] = struct{}{}
		}
		if at, ok := m.EffectiveTime(); ok {
			if !at.Before(recentSince) && !at.After(f.now) {
				terms.RecentMembers++
			}
			if !hasTime || at.After(newest) {
				newest, hasTime = at, true
			}
		}
		if i < len(articleScores) {
			terms.PooledScore += articleScores[i]
		}
	}

	terms.DistinctSources = len(sources)
	if terms.Members > 0 {
		terms.AverageWeight = terms.TotalSourceWeight / float64(terms.Members)
	}
	if hasTime {
		terms.Freshness = Freshness(f.now.Sub(newest), f.cfg.ClusterHalfLifeHours)
	}
	return terms
}

func (f Formula) ClusterScore(t ClusterTerms) float64 {
	c := f.cfg
	return c.SourceWeightCoverage*log1pNonNeg(t.TotalSourceWeight) +
		c.DistinctSourceCoverage*math.Log1p(float64(t.DistinctSources)) +
		c.MemberCoverage*math.Log1p(float64(t.Members)) +
		c.Velocity*math.Log1p(float64(t.RecentMembers)) +
		c.ClusterFreshness*t.Freshness +
		c.AverageSourceWeight*t.AverageWeight +
		c.PooledArticleScore*log1pNonNeg(t.PooledScore)
}

func sourceKey(a ArticleInput) string {
	if a.SourceID != nil {
		return "id:" + strconv.FormatInt(*a.SourceID, 10)
	}
	if a.Host != "" {
		return "host:" + a.Host
	}
	return ""
}

func hostIn(host string, domains []string) bool {
	for _, d := range domains {
		if textnorm.HostMatches(host, d) {
			return true
		}
	}
	return false
}

// log1pNonNeg keeps penalized sums from going below log1p(0).
func log1pNonNeg(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Log1p(v)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
