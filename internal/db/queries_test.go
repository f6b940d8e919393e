package db

import (
	"strings"
	"testing"
	"time"

	"gorm.io/gorm/logger"
)

func TestNeighborStatementUsesCosineOperator(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stmt, args, err := neighborStatement(NeighborQuery{
		VectorLiteral:    "[0.1,0.2]",
		Since:            since,
		Floor:            0.6,
		Limit:            20,
		ExcludeArticleID: 7,
	})
	if err != nil {
		t.Fatalf("neighborStatement() error = %v", err)
	}

	for _, want := range []string{
		"1 - (a.embedding <=> $1::vector)",
		"LEFT JOIN news.cluster_members cm",
		"a.article_id <> $2",
		"ORDER BY a.embedding <=> $6::vector ASC",
		"LIMIT 20",
	} {
		if !strings.Contains(stmt, want) {
			t.Fatalf("statement missing %q:\n%s", want, stmt)
		}
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d: %v", len(args), args)
	}
	if args[0] != "[0.1,0.2]" || args[1] != int64(7) || args[4] != 0.6 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestResolveGormLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level string
		env   string
		want  logger.LogLevel
	}{
		{level: "debug", want: logger.Info},
		{level: "info", want: logger.Warn},
		{level: "error", want: logger.Error},
		{level: "silent", want: logger.Silent},
		{level: "bogus", env: "local", want: logger.Warn},
		{level: "bogus", env: "production", want: logger.Error},
	}
	for _, tc := range cases {
		if got := resolveGormLogLevel(tc.level, tc.env); got != tc.want {
			t.Fatalf("resolveGormLogLevel(%q, %q) = %v, want %v", tc.level, tc.env, got, tc.want)
		}
	}
}

func TestNilPoolGuards(t *testing.T) {
	t.Parallel()

	var p *Pool
	if err := p.Close(); err != nil {
		t.Fatalf("Close() on nil pool = %v", err)
	}
	if err := p.QueryRow(t.Context(), "SELECT 1").Scan(new(int)); !IsNoRows(err) {
		t.Fatalf("expected ErrNoRows from nil pool row, got %v", err)
	}
	if _, err := p.Exec(t.Context(), "SELECT 1"); err == nil {
		t.Fatalf("expected error from nil pool exec")
	}
}

func TestPostBootstrapAddsSourceForeignKey(t *testing.T) {
	t.Parallel()

	for _, want := range []string{
		"conname = 'articles_source_id_fkey'",
		"IF NOT EXISTS",
		"FOREIGN KEY (source_id) REFERENCES news.sources (source_id)",
	} {
		if !strings.Contains(postBootstrapSQL, want) {
			t.Fatalf("post-bootstrap SQL is missing %q", want)
		}
	}
}
