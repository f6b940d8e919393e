package cluster

import (
	"context"
	"time"

	"horse.fit/storyline/internal/db"
)

// PGStore backs the engine with the news schema.
type PGStore struct {
	pool *db.Pool
}

func NewPGStore(pool *db.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ArticleCluster(ctx context.Context, articleID int64) (int64, bool, error) {
	return db.ArticleClusterTx(ctx, s.pool, articleID)
}

func (s *PGStore) NearestNeighbors(ctx context.Context, query db.NeighborQuery) ([]db.Neighbor, error) {
	return s.pool.NearestNeighbors(ctx, query)
}

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.pool.WithTx(ctx, func(tx db.Tx) error {
		return fn(pgTx{q: tx})
	})
}

type pgTx struct {
	q db.Querier
}

func (t pgTx) ArticleCluster(ctx context.Context, articleID int64) (int64, bool, error) {
	return db.ArticleClusterTx(ctx, t.q, articleID)
}

func (t pgTx) ClusterIDByKey(ctx context.Context, key string) (int64, bool, error) {
	return db.ClusterIDByKeyTx(ctx, t.q, key)
}

func (t pgTx) TitleClusterKeysSince(ctx context.Context, since time.Time) ([]db.ClusterKey, error) {
	return db.TitleClusterKeysSinceTx(ctx, t.q, since)
}

func (t pgTx) UpsertCluster(ctx context.Context, key, kind string, now time.Time) (int64, bool, error) {
	return db.UpsertClusterTx(ctx, t.q, key, kind, now)
}

func (t pgTx) InsertMembership(ctx context.Context, m db.Membership) (bool, error) {
	return db.InsertMembershipTx(ctx, t.q, m)
}

func (t pgTx) InsertClusterEvent(ctx context.Context, e db.ClusterEvent) error {
	return db.InsertClusterEventTx(ctx, t.q, e)
}
