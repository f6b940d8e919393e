// Package tuning holds the algorithm constants for clustering, scoring and
// rewrite validation. Defaults are compiled in; a YAML file can override any
// subset of them.
package tuning

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Cluster Cluster `yaml:"cluster"`
	Scoring Scoring `yaml:"scoring"`
	Rewrite Rewrite `yaml:"rewrite"`
}

type Cluster struct {
	NeighborWindow      time.Duration `yaml:"neighbor_window"`
	SimilarityFloor     float64       `yaml:"similarity_floor"`
	NeighborLimit       int           `yaml:"neighbor_limit"`
	SearchEF            int           `yaml:"search_ef"`
	FuzzyKeyWindow      time.Duration `yaml:"fuzzy_key_window"`
	FuzzyKeyThreshold   float64       `yaml:"fuzzy_key_threshold"`
	TitleKeyMaxWords    int           `yaml:"title_key_max_words"`
	TitleKeyMaxChars    int           `yaml:"title_key_max_chars"`
	MaintenanceLookback time.Duration `yaml:"maintenance_lookback"`
}

type Scoring struct {
	Window               time.Duration `yaml:"window"`
	ArticleHalfLifeHours float64       `yaml:"article_half_life_hours"`
	ClusterHalfLifeHours float64       `yaml:"cluster_half_life_hours"`
	VelocityWindow       time.Duration `yaml:"velocity_window"`

	AuthorBonus         float64  `yaml:"author_bonus"`
	DekBonus            float64  `yaml:"dek_bonus"`
	DekMinChars         int      `yaml:"dek_min_chars"`
	AggregatorPenalty   float64  `yaml:"aggregator_penalty"`
	PressWirePenalty    float64  `yaml:"press_wire_penalty"`
	AggregatorHosts     []string `yaml:"aggregator_hosts"`
	PressWireHosts      []string `yaml:"press_wire_hosts"`
	BaseFreshnessWeight float64  `yaml:"base_freshness_weight"`
	MaxFreshnessWeight  float64  `yaml:"max_freshness_weight"`
	TightWindowHours    float64  `yaml:"tight_window_hours"`

	SourceWeightCoverage   float64 `yaml:"source_weight_coverage"`
	DistinctSourceCoverage float64 `yaml:"distinct_source_coverage"`
	MemberCoverage         float64 `yaml:"member_coverage"`
	Velocity               float64 `yaml:"velocity"`
	ClusterFreshness       float64 `yaml:"cluster_freshness"`
	AverageSourceWeight    float64 `yaml:"average_source_weight"`
	PooledArticleScore     float64 `yaml:"pooled_article_score"`
}

type Rewrite struct {
	MinChars             int      `yaml:"min_chars"`
	MinCharsWithoutBody  int      `yaml:"min_chars_without_body"`
	MaxChars             int      `yaml:"max_chars"`
	LongOriginalWords    int      `yaml:"long_original_words"`
	LongOriginalMinWords int      `yaml:"long_original_min_words"`
	MinRatioWithBody     float64  `yaml:"min_ratio_with_body"`
	MinRatioWithoutBody  float64  `yaml:"min_ratio_without_body"`
	HypePatterns         []string `yaml:"hype_patterns"`
	HedgingPatterns      []string `yaml:"hedging_patterns"`
	MetaPatterns         []string `yaml:"meta_patterns"`
	BodyExcerptChars     int      `yaml:"body_excerpt_chars"`
}

func Default() Tuning {
	return Tuning{
		Cluster: Cluster{
			NeighborWindow:      7 * 24 * time.Hour,
			SimilarityFloor:     0.6,
			NeighborLimit:       20,
			SearchEF:            64,
			FuzzyKeyWindow:      96 * time.Hour,
			FuzzyKeyThreshold:   0.86,
			TitleKeyMaxWords:    12,
			TitleKeyMaxChars:    120,
			MaintenanceLookback: 7 * 24 * time.Hour,
		},
		Scoring: Scoring{
			Window:               48 * time.Hour,
			ArticleHalfLifeHours: 8,
			ClusterHalfLifeHours: 24,
			VelocityWindow:       6 * time.Hour,

			AuthorBonus:       0.1,
			DekBonus:          0.1,
			DekMinChars:       80,
			AggregatorPenalty: 0.3,
			PressWirePenalty:  0.2,
			AggregatorHosts: []string{
				"news.google.com",
				"news.yahoo.com",
				"msn.com",
				"flipboard.com",
				"newsbreak.com",
				"ground.news",
			},
			PressWireHosts: []string{
				"prnewswire.com",
				"businesswire.com",
				"globenewswire.com",
				"accesswire.com",
				"einpresswire.com",
			},
			BaseFreshnessWeight: 0.4,
			MaxFreshnessWeight:  0.6,
			TightWindowHours:    72,

			SourceWeightCoverage:   1.0,
			DistinctSourceCoverage: 1.5,
			MemberCoverage:         0.5,
			Velocity:               1.2,
			ClusterFreshness:       1.0,
			AverageSourceWeight:    0.5,
			PooledArticleScore:     0.25,
		},
		Rewrite: Rewrite{
			MinChars:             35,
			MinCharsWithoutBody:  25,
			MaxChars:             120,
			LongOriginalWords:    40,
			LongOriginalMinWords: 6,
			MinRatioWithBody:     0.65,
			MinRatioWithoutBody:  0.55,
			HypePatterns: []string{
				"revolutionary", "game[- ]changer", "game[- ]changing", "unprecedented",
				"slams", "slammed", "blasts", "shocking", "stunning", "jaw[- ]dropping",
				"bombshell", "mind[- ]blowing", "skyrockets", "explodes", "epic",
				"you won'?t believe", "must[- ]see",
			},
			HedgingPatterns: []string{
				"likely", "unlikely", "set to", "poised to", "expected to", "appears to",
				"could", "might", "reportedly", "possibly", "potentially", "rumou?red",
			},
			MetaPatterns: []string{
				"reports on", "reporting on", "raising concerns", "raises concerns",
				"citing challenges", "builds momentum", "gains momentum", "sparks debate",
				"draws attention", "sheds light on", "weighs in", "amid concerns",
				"in a move to",
			},
			BodyExcerptChars: 1200,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty path
// yields the defaults.
func Load(path string) (Tuning, error) {
	t := Default()
	path = strings.TrimSpace(path)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Tuning{}, fmt.Errorf("read tuning file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return Tuning{}, fmt.Errorf("parse tuning file %s: %w", path, err)
		}
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("tuning validation failed: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	c := t.Cluster
	if c.SimilarityFloor < -1 || c.SimilarityFloor > 1 {
		return fmt.Errorf("cluster.similarity_floor must be within [-1, 1]")
	}
	if c.NeighborLimit < 1 {
		return fmt.Errorf("cluster.neighbor_limit must be >= 1")
	}
	if c.NeighborWindow <= 0 || c.FuzzyKeyWindow <= 0 || c.MaintenanceLookback <= 0 {
		return fmt.Errorf("cluster windows must be > 0")
	}
	if c.FuzzyKeyThreshold <= 0 || c.FuzzyKeyThreshold > 1 {
		return fmt.Errorf("cluster.fuzzy_key_threshold must be within (0, 1]")
	}
	if c.TitleKeyMaxWords < 1 || c.TitleKeyMaxChars < 1 {
		return fmt.Errorf("cluster title key limits must be >= 1")
	}

	s := t.Scoring
	if s.Window <= 0 || s.VelocityWindow <= 0 {
		return fmt.Errorf("scoring windows must be > 0")
	}
	if s.ArticleHalfLifeHours <= 0 || s.ClusterHalfLifeHours <= 0 {
		return fmt.Errorf("scoring half-lives must be > 0")
	}
	weights := map[string]float64{
		"source_weight_coverage":   s.SourceWeightCoverage,
		"distinct_source_coverage": s.DistinctSourceCoverage,
		"member_coverage":          s.MemberCoverage,
		"velocity":                 s.Velocity,
		"cluster_freshness":        s.ClusterFreshness,
		"average_source_weight":    s.AverageSourceWeight,
		"pooled_article_score":     s.PooledArticleScore,
		"author_bonus":             s.AuthorBonus,
		"dek_bonus":                s.DekBonus,
		"aggregator_penalty":       s.AggregatorPenalty,
		"press_wire_penalty":       s.PressWirePenalty,
	}
	for name, value := range weights {
		if value < 0 {
			return fmt.Errorf("scoring.%s must be >= 0", name)
		}
	}
	if s.BaseFreshnessWeight < 0 || s.MaxFreshnessWeight > 1 || s.BaseFreshnessWeight > s.MaxFreshnessWeight {
		return fmt.Errorf("scoring freshness weights must satisfy 0 <= base <= max <= 1")
	}
	if s.TightWindowHours <= 0 {
		return fmt.Errorf("scoring.tight_window_hours must be > 0")
	}

	r := t.Rewrite
	if r.MinChars < 1 || r.MinCharsWithoutBody < 1 {
		return fmt.Errorf("rewrite minimum lengths must be >= 1")
	}
	if r.MaxChars < r.MinChars || r.MaxChars < r.MinCharsWithoutBody {
		return fmt.Errorf("rewrite.max_chars must not be below the minimum lengths")
	}
	if r.MinRatioWithBody <= 0 || r.MinRatioWithBody > 1 || r.MinRatioWithoutBody <= 0 || r.MinRatioWithoutBody > 1 {
		return fmt.Errorf("rewrite compression ratios must be within (0, 1]")
	}
	if r.LongOriginalWords < 1 || r.LongOriginalMinWords < 1 {
		return fmt.Errorf("rewrite long-original limits must be >= 1")
	}
	for family, patterns := range map[string][]string{
		"hype_patterns":    r.HypePatterns,
		"hedging_patterns": r.HedgingPatterns,
		"meta_patterns":    r.MetaPatterns,
	} {
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("rewrite.%s: invalid pattern %q: %w", family, p, err)
			}
		}
	}
	return nil
}
