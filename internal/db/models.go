package db

import "time"

// Source maps news.sources.
type Source struct {
	SourceID   int64     `gorm:"column:source_id;primaryKey;autoIncrement"`
	SourceUUID string    `gorm:"column:source_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Slug       string    `gorm:"column:slug;type:text;not null;unique"`
	Name       string    `gorm:"column:name;type:text;not null"`
	Homepage   *string   `gorm:"column:homepage;type:text"`
	Host       *string   `gorm:"column:host;type:text;index"`
	Weight     float64   `gorm:"column:weight;type:double precision;not null;default:1.0"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "news.sources" }

// Article maps news.articles. Enrichment columns are written once.
type Article struct {
	ArticleID        int64      `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID      string     `gorm:"column:article_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SourceID         *int64     `gorm:"column:source_id;type:bigint;index"`
	Title            string     `gorm:"column:title;type:text;not null"`
	CanonicalURL     string     `gorm:"column:canonical_url;type:text;not null;unique"`
	PublishedAt      *time.Time `gorm:"column:published_at;type:timestamptz"`
	FetchedAt        time.Time  `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	Dek              *string    `gorm:"column:dek;type:text"`
	Author           *string    `gorm:"column:author;type:text"`
	BodyText         *string    `gorm:"column:body_text;type:text"`
	BodyStatus       *string    `gorm:"column:body_status;type:text"`
	Language         *string    `gorm:"column:language;type:text"`
	Embedding        *string    `gorm:"column:embedding;type:vector(1536)"`
	EmbeddingModel   *string    `gorm:"column:embedding_model;type:text"`
	EmbeddedAt       *time.Time `gorm:"column:embedded_at;type:timestamptz"`
	RewrittenTitle   *string    `gorm:"column:rewritten_title;type:text"`
	RewriteGenerator *string    `gorm:"column:rewrite_generator;type:text"`
	RewriteStatus    *string    `gorm:"column:rewrite_status;type:text"`
	RewriteNotes     *string    `gorm:"column:rewrite_notes;type:text"`
	RewrittenAt      *time.Time `gorm:"column:rewritten_at;type:timestamptz"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "news.articles" }

// Cluster maps news.clusters. One row is one story.
type Cluster struct {
	ClusterID   int64     `gorm:"column:cluster_id;primaryKey;autoIncrement"`
	ClusterUUID string    `gorm:"column:cluster_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ClusterKey  string    `gorm:"column:cluster_key;type:text;not null;unique"`
	KeyKind     string    `gorm:"column:key_kind;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Cluster) TableName() string { return "news.clusters" }

// ClusterMember maps news.cluster_members.
type ClusterMember struct {
	ClusterID  int64     `gorm:"column:cluster_id;type:bigint;primaryKey"`
	ArticleID  int64     `gorm:"column:article_id;type:bigint;primaryKey;uniqueIndex:cluster_members_article_id_key"`
	MatchKind  string    `gorm:"column:match_kind;type:text;not null"`
	Similarity *float64  `gorm:"column:similarity;type:double precision"`
	MatchedAt  time.Time `gorm:"column:matched_at;type:timestamptz;not null;default:now()"`
}

func (ClusterMember) TableName() string { return "news.cluster_members" }

// ClusterScore maps news.cluster_scores.
type ClusterScore struct {
	ClusterID     int64     `gorm:"column:cluster_id;primaryKey"`
	Size          int       `gorm:"column:size;type:integer;not null"`
	Score         float64   `gorm:"column:score;type:double precision;not null"`
	LeadArticleID int64     `gorm:"column:lead_article_id;type:bigint;not null"`
	ComputedAt    time.Time `gorm:"column:computed_at;type:timestamptz;not null"`
}

func (ClusterScore) TableName() string { return "news.cluster_scores" }

// ClusterEventRecord maps news.cluster_events.
type ClusterEventRecord struct {
	ClusterEventID int64     `gorm:"column:cluster_event_id;primaryKey;autoIncrement"`
	ArticleID      int64     `gorm:"column:article_id;type:bigint;not null;unique"`
	Strategy       string    `gorm:"column:strategy;type:text;not null"`
	Decision       string    `gorm:"column:decision;type:text;not null"`
	ClusterID      *int64    `gorm:"column:cluster_id;type:bigint"`
	BestSimilarity *float64  `gorm:"column:best_similarity;type:double precision"`
	NeighborCount  int       `gorm:"column:neighbor_count;type:integer;not null;default:0"`
	RepairedCount  int       `gorm:"column:repaired_count;type:integer;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ClusterEventRecord) TableName() string { return "news.cluster_events" }

// RewriteEventRecord maps news.rewrite_events.
type RewriteEventRecord struct {
	RewriteEventID int64     `gorm:"column:rewrite_event_id;primaryKey;autoIncrement"`
	ArticleID      int64     `gorm:"column:article_id;type:bigint;not null"`
	Generator      string    `gorm:"column:generator;type:text;not null"`
	Candidate      *string   `gorm:"column:candidate;type:text"`
	Status         string    `gorm:"column:status;type:text;not null"`
	Reason         *string   `gorm:"column:reason;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RewriteEventRecord) TableName() string { return "news.rewrite_events" }

func bootstrapModels() []any {
	return []any{
		&Source{},
		&Article{},
		&Cluster{},
		&ClusterMember{},
		&ClusterScore{},
		&ClusterEventRecord{},
		&RewriteEventRecord{},
	}
}
