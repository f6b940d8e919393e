package cluster

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"horse.fit/storyline/internal/db"
	"horse.fit/storyline/internal/similarity"
	"horse.fit/storyline/internal/tuning"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// cosine mirrors the pgvector similarity used by the real neighbor query.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

type memArticle struct {
	vec []float64
	at  time.Time
}

type memCluster struct {
	key       string
	kind      string
	createdAt time.Time
}

type memStore struct {
	mu       sync.Mutex
	articles map[int64]memArticle
	clusters map[int64]memCluster
	members  map[int64]db.Membership
	events   map[int64]db.ClusterEvent
	nextID   int64

	// raceWinner, when set, is installed as the article's membership just
	// before the engine's own insert, as if another worker committed first.
	raceWinner int64
}

func newMemStore() *memStore {
	return &memStore{
		articles: map[int64]memArticle{},
		clusters: map[int64]memCluster{},
		members:  map[int64]db.Membership{},
		events:   map[int64]db.ClusterEvent{},
		nextID:   100,
	}
}

func (s *memStore) addArticle(id int64, vec []float64, at time.Time) {
	s.articles[id] = memArticle{vec: vec, at: at}
}

func (s *memStore) addCluster(id int64, key, kind string, createdAt time.Time) {
	s.clusters[id] = memCluster{key: key, kind: kind, createdAt: createdAt}
}

func (s *memStore) join(clusterID, articleID int64) {
	s.members[articleID] = db.Membership{ClusterID: clusterID, ArticleID: articleID, MatchKind: MatchNeighbor}
}

func (s *memStore) ArticleCluster(_ context.Context, articleID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[articleID]
	return m.ClusterID, ok, nil
}

func (s *memStore) NearestNeighbors(_ context.Context, q db.NeighborQuery) ([]db.Neighbor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := similarity.ParseLiteral(q.VectorLiteral)
	if err != nil {
		return nil, err
	}
	var out []db.Neighbor
	for id, a := range s.articles {
		if id == q.ExcludeArticleID || len(a.vec) == 0 || a.at.Before(q.Since) {
			continue
		}
		sim := cosine(target, a.vec)
		if sim < q.Floor {
			continue
		}
		n := db.Neighbor{ArticleID: id, Similarity: sim}
		if m, ok := s.members[id]; ok {
			clusterID := m.ClusterID
			n.ClusterID = &clusterID
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ArticleID < out[j].ArticleID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(memTx{s: s})
}

type memTx struct {
	s *memStore
}

func (t memTx) ArticleCluster(_ context.Context, articleID int64) (int64, bool, error) {
	m, ok := t.s.members[articleID]
	return m.ClusterID, ok, nil
}

func (t memTx) ClusterIDByKey(_ context.Context, key string) (int64, bool, error) {
	for id, c := range t.s.clusters {
		if c.key == key {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t memTx) TitleClusterKeysSince(_ context.Context, since time.Time) ([]db.ClusterKey, error) {
	var out []db.ClusterKey
	for id, c := range t.s.clusters {
		if c.kind == db.KeyKindTitle && !c.createdAt.Before(since) {
			out = append(out, db.ClusterKey{ClusterID: id, Key: c.key, CreatedAt: c.createdAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out, nil
}

func (t memTx) UpsertCluster(ctx context.Context, key, kind string, now time.Time) (int64, bool, error) {
	if id, ok, _ := t.ClusterIDByKey(ctx, key); ok {
		return id, false, nil
	}
	t.s.nextID++
	t.s.clusters[t.s.nextID] = memCluster{key: key, kind: kind, createdAt: now}
	return t.s.nextID, true, nil
}

func (t memTx) InsertMembership(_ context.Context, m db.Membership) (bool, error) {
	if t.s.raceWinner != 0 {
		if _, ok := t.s.members[m.ArticleID]; !ok {
			t.s.members[m.ArticleID] = db.Membership{ClusterID: t.s.raceWinner, ArticleID: m.ArticleID, MatchKind: MatchSeed}
		}
	}
	if _, ok := t.s.members[m.ArticleID]; ok {
		return false, nil
	}
	t.s.members[m.ArticleID] = m
	return true, nil
}

func (t memTx) InsertClusterEvent(_ context.Context, e db.ClusterEvent) error {
	t.s.events[e.ArticleID] = e
	return nil
}

func newTestEngine(store Store) *Engine {
	e := NewEngine(store, tuning.Default().Cluster, zerolog.Nop())
	e.now = func() time.Time { return testNow }
	return e
}

// vec builds a full-width embedding from its leading components.
func vec(components ...float64) []float64 {
	out := make([]float64, similarity.Dimensions)
	copy(out, components)
	return out
}

func TestAssignClusterIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addArticle(1, vec(1, 0.1), testNow.Add(-time.Hour))
	store.addCluster(7, "emb:a1", db.KeyKindEmbedding, testNow.Add(-time.Hour))
	store.join(7, 1)

	engine := newTestEngine(store)
	article := Article{ID: 2, UUID: "b2", Title: "Grid operator warns of winter shortfall"}
	embedding := vec(1, 0.12)

	first, err := engine.AssignCluster(context.Background(), article, embedding)
	if err != nil {
		t.Fatalf("first AssignCluster() error = %v", err)
	}
	if first.Decision != DecisionJoined || first.ClusterID != 7 {
		t.Fatalf("expected join of cluster 7, got %+v", first)
	}

	second, err := engine.AssignCluster(context.Background(), article, embedding)
	if err != nil {
		t.Fatalf("second AssignCluster() error = %v", err)
	}
	if second.Decision != DecisionAlreadyClustered || second.ClusterID != 7 {
		t.Fatalf("expected already_clustered in cluster 7, got %+v", second)
	}

	count := 0
	for _, m := range store.members {
		if m.ArticleID == 2 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one membership for article 2, got %d", count)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected one cluster event, got %d", len(store.events))
	}
}

func TestAssignClusterRetroactiveRepair(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	engine := newTestEngine(store)

	embA := vec(1, 0.2, 0.05)
	a, err := engine.AssignCluster(context.Background(), Article{ID: 1, UUID: "uuid-a", Title: "A"}, embA)
	if err != nil {
		t.Fatalf("AssignCluster(A) error = %v", err)
	}
	if a.Clustered || a.Decision != DecisionNoNeighbors {
		t.Fatalf("expected A to stay unclustered, got %+v", a)
	}
	store.addArticle(1, embA, testNow.Add(-2*time.Hour))

	embB := vec(1, 0.25, 0.05)
	store.addArticle(2, embB, testNow.Add(-time.Hour))
	b, err := engine.AssignCluster(context.Background(), Article{ID: 2, UUID: "uuid-b", Title: "B"}, embB)
	if err != nil {
		t.Fatalf("AssignCluster(B) error = %v", err)
	}
	if !b.Clustered || b.Decision != DecisionSeeded || b.Repaired != 1 {
		t.Fatalf("expected B to seed a cluster and repair A, got %+v", b)
	}

	if store.clusters[b.ClusterID].key != "emb:uuid-b" {
		t.Fatalf("expected synthetic key emb:uuid-b, got %q", store.clusters[b.ClusterID].key)
	}
	if store.members[1].ClusterID != b.ClusterID || store.members[1].MatchKind != MatchRepair {
		t.Fatalf("expected A repaired into cluster %d, got %+v", b.ClusterID, store.members[1])
	}
	if store.members[2].MatchKind != MatchSeed {
		t.Fatalf("expected B membership to be the seed, got %+v", store.members[2])
	}
}

func TestAssignClusterJoinsHighestSimilarityNeighbor(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	at := testNow.Add(-time.Hour)
	// Two moderately similar members of cluster 10, one closer member of 20.
	store.addArticle(1, vec(1, 0.5), at)
	store.addArticle(2, vec(1, 0.45), at)
	store.addArticle(3, vec(1, 0.05), at)
	store.addCluster(10, "emb:x", db.KeyKindEmbedding, at)
	store.addCluster(20, "emb:y", db.KeyKindEmbedding, at)
	store.join(10, 1)
	store.join(10, 2)
	store.join(20, 3)

	got, err := newTestEngine(store).AssignCluster(context.Background(), Article{ID: 9, UUID: "n"}, vec(1, 0))
	if err != nil {
		t.Fatalf("AssignCluster() error = %v", err)
	}
	if got.ClusterID != 20 || got.Decision != DecisionJoined {
		t.Fatalf("expected join of highest-similarity cluster 20, got %+v", got)
	}
	if got.Neighbors != 3 || got.Repaired != 0 {
		t.Fatalf("unexpected neighbor counters: %+v", got)
	}
}

func TestBestClusteredNeighborTieGoesToLowerCluster(t *testing.T) {
	t.Parallel()

	c5, c3, c2 := int64(5), int64(3), int64(2)
	best, ok := bestClusteredNeighbor([]db.Neighbor{
		{ArticleID: 1, ClusterID: &c5, Similarity: 0.9},
		{ArticleID: 2, ClusterID: &c3, Similarity: 0.95},
		{ArticleID: 3, Similarity: 0.99},
		{ArticleID: 4, ClusterID: &c2, Similarity: 0.95},
	})
	if !ok || *best.ClusterID != 2 {
		t.Fatalf("expected cluster 2 on tie, got %+v ok=%v", best, ok)
	}

	if _, ok := bestClusteredNeighbor([]db.Neighbor{{ArticleID: 1, Similarity: 0.9}}); ok {
		t.Fatalf("expected no clustered neighbor")
	}
}

func TestAssignClusterOutsideWindowHasNoNeighbors(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addArticle(1, vec(1), testNow.Add(-8*24*time.Hour))
	store.addCluster(4, "emb:old", db.KeyKindEmbedding, testNow.Add(-8*24*time.Hour))
	store.join(4, 1)

	got, err := newTestEngine(store).AssignCluster(context.Background(), Article{ID: 2, UUID: "u"}, vec(1))
	if err != nil {
		t.Fatalf("AssignCluster() error = %v", err)
	}
	if got.Clustered || got.Decision != DecisionNoNeighbors {
		t.Fatalf("expected no_neighbors outside the window, got %+v", got)
	}
	if ev, ok := store.events[2]; !ok || ev.ClusterID != nil {
		t.Fatalf("expected unclustered event for article 2, got %+v", ev)
	}
}

func TestAssignClusterTitleFallback(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.AssignCluster(ctx, Article{ID: 1, Title: "Storm Ciara floods coastal towns in Wales"}, nil)
	if err != nil {
		t.Fatalf("AssignCluster(1) error = %v", err)
	}
	if first.Decision != DecisionTitleNew || first.Strategy != StrategyTitle {
		t.Fatalf("expected title_new, got %+v", first)
	}
	if key := store.clusters[first.ClusterID].key; key != "storm ciara floods coastal towns wales" {
		t.Fatalf("unexpected title key %q", key)
	}

	exact, err := engine.AssignCluster(ctx, Article{ID: 2, Title: "Storm Ciara Floods Coastal Towns in Wales!"}, nil)
	if err != nil {
		t.Fatalf("AssignCluster(2) error = %v", err)
	}
	if exact.Decision != DecisionTitleExact || exact.ClusterID != first.ClusterID {
		t.Fatalf("expected exact key match, got %+v", exact)
	}

	fuzzy, err := engine.AssignCluster(ctx, Article{ID: 3, Title: "Storm Ciara flood coastal towns in Wales"}, nil)
	if err != nil {
		t.Fatalf("AssignCluster(3) error = %v", err)
	}
	if fuzzy.Decision != DecisionTitleFuzzy || fuzzy.ClusterID != first.ClusterID {
		t.Fatalf("expected fuzzy key match, got %+v", fuzzy)
	}
	if fuzzy.Similarity == nil || *fuzzy.Similarity < 0.86 {
		t.Fatalf("expected fuzzy similarity >= 0.86, got %v", fuzzy.Similarity)
	}

	other, err := engine.AssignCluster(ctx, Article{ID: 4, Title: "Central bank holds rates steady"}, nil)
	if err != nil {
		t.Fatalf("AssignCluster(4) error = %v", err)
	}
	if other.Decision != DecisionTitleNew || other.ClusterID == first.ClusterID {
		t.Fatalf("expected a new title cluster, got %+v", other)
	}
}

func TestAssignClusterFuzzyIgnoresStaleClusters(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addCluster(3, "storm ciara floods coastal towns wales", db.KeyKindTitle, testNow.Add(-100*time.Hour))

	got, err := newTestEngine(store).AssignCluster(context.Background(), Article{ID: 1, Title: "Storm Ciara flood coastal towns in Wales"}, nil)
	if err != nil {
		t.Fatalf("AssignCluster() error = %v", err)
	}
	if got.Decision != DecisionTitleNew || got.ClusterID == 3 {
		t.Fatalf("expected stale cluster to be ignored, got %+v", got)
	}
}

func TestAssignClusterEmptyTitleKey(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	got, err := newTestEngine(store).AssignCluster(context.Background(), Article{ID: 1, Title: "The -- and of!"}, nil)
	if err != nil {
		t.Fatalf("AssignCluster() error = %v", err)
	}
	if got.Clustered || got.Decision != DecisionNoTitleKey {
		t.Fatalf("expected no_title_key, got %+v", got)
	}
	if len(store.members) != 0 {
		t.Fatalf("expected no memberships, got %d", len(store.members))
	}
}

func TestAssignClusterReportsRaceWinner(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addCluster(55, "storm ciara floods coastal towns wales", db.KeyKindTitle, testNow)
	store.raceWinner = 99

	got, err := newTestEngine(store).AssignCluster(context.Background(), Article{ID: 1, Title: "Storm Ciara floods coastal towns in Wales"}, nil)
	if err != nil {
		t.Fatalf("AssignCluster() error = %v", err)
	}
	if got.ClusterID != 99 || !got.Raced {
		t.Fatalf("expected concurrent winner 99 to be reported, got %+v", got)
	}
	if ev := store.events[1]; ev.ClusterID == nil || *ev.ClusterID != 99 {
		t.Fatalf("expected event to record winner, got %+v", ev)
	}
}

func TestAssignClusterRejectsWrongWidth(t *testing.T) {
	t.Parallel()

	_, err := newTestEngine(newMemStore()).AssignCluster(context.Background(), Article{ID: 1, UUID: "u"}, []float64{1, 2})
	if err == nil {
		t.Fatalf("expected width error")
	}
}
