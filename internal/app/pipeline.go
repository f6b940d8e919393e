package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/storyline/internal/cli"
	"horse.fit/storyline/internal/pipeline"
)

// passFlags are shared by the batch pass commands.
type passFlags struct {
	fs        *flag.FlagSet
	envLoader *cli.EnvLoader
	timeout   *time.Duration
}

func newPassFlags(name string, timeout time.Duration) passFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return passFlags{
		fs:        fs,
		envLoader: cli.AddEnvFlag(fs, ".env", "Path to the .env file"),
		timeout:   fs.Duration("timeout", timeout, "Command timeout"),
	}
}

// parse returns an exit code and false when the command should stop.
func (p passFlags) parse(args []string, limits map[string]*int) (int, bool) {
	if err := p.fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	for name, limit := range limits {
		if *limit <= 0 {
			fmt.Fprintf(os.Stderr, "--%s must be > 0\n", name)
			return 2, false
		}
	}
	return 0, true
}

func runEmbed(args []string) int {
	p := newPassFlags("embed", 5*time.Minute)
	limit := p.fs.Int("limit", pipeline.DefaultPassLimit, "Maximum articles to embed")
	if code, ok := p.parse(args, map[string]*int{"limit": limit}); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *p.timeout)
	defer cancel()

	s, ok := openSession(ctx, p.envLoader, "embed")
	if !ok {
		return 1
	}
	defer s.Close()

	svc, err := s.pipelineService(false)
	if err != nil {
		return failPass(s, "embed", err)
	}
	result, err := svc.EmbedPending(ctx, *limit)
	if err != nil {
		return failPass(s, "embed", err)
	}

	fmt.Printf(
		"embed run_id=%s processed=%d embedded=%d skipped=%d failed=%d limit=%d\n",
		s.runID, result.Processed, result.Embedded, result.Skipped, result.Failed, *limit,
	)
	return 0
}

func runCluster(args []string) int {
	p := newPassFlags("cluster", 5*time.Minute)
	limit := p.fs.Int("limit", pipeline.DefaultPassLimit, "Maximum unclustered articles to retry")
	if code, ok := p.parse(args, map[string]*int{"limit": limit}); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *p.timeout)
	defer cancel()

	s, ok := openSession(ctx, p.envLoader, "cluster")
	if !ok {
		return 1
	}
	defer s.Close()

	svc, err := s.pipelineService(false)
	if err != nil {
		return failPass(s, "cluster", err)
	}
	result, err := svc.ClusterPending(ctx, *limit)
	if err != nil {
		return failPass(s, "cluster", err)
	}

	fmt.Printf(
		"cluster run_id=%s processed=%d clustered=%d unclustered=%d failed=%d limit=%d\n",
		s.runID, result.Processed, result.Clustered, result.Unclustered, result.Failed, *limit,
	)
	return 0
}

func runScore(args []string) int {
	p := newPassFlags("score", 2*time.Minute)
	if code, ok := p.parse(args, nil); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *p.timeout)
	defer cancel()

	s, ok := openSession(ctx, p.envLoader, "score")
	if !ok {
		return 1
	}
	defer s.Close()

	svc, err := s.pipelineService(false)
	if err != nil {
		return failPass(s, "score", err)
	}
	result, err := svc.Score(ctx)
	if err != nil {
		return failPass(s, "score", err)
	}

	fmt.Printf(
		"score run_id=%s clusters=%d articles=%d skipped=%d computed_at=%s\n",
		s.runID, result.Clusters, result.Articles, result.Skipped, result.ComputedAt.Format(time.RFC3339),
	)
	return 0
}

func runRewrite(args []string) int {
	p := newPassFlags("rewrite", 10*time.Minute)
	limit := p.fs.Int("limit", 50, "Maximum lead articles to rewrite")
	if code, ok := p.parse(args, map[string]*int{"limit": limit}); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *p.timeout)
	defer cancel()

	s, ok := openSession(ctx, p.envLoader, "rewrite")
	if !ok {
		return 1
	}
	defer s.Close()

	runner, err := s.rewriteRunner()
	if err != nil {
		return failPass(s, "rewrite", err)
	}
	result, err := runner.RewritePending(ctx, *limit)
	if err != nil {
		return failPass(s, "rewrite", err)
	}

	fmt.Printf(
		"rewrite run_id=%s candidates=%d accepted=%d rejected=%d skipped=%d failed=%d already_decided=%d\n",
		s.runID, result.Candidates, result.Accepted, result.Rejected, result.Skipped, result.Failed, result.AlreadyDecided,
	)
	return 0
}

func runProcess(args []string) int {
	p := newPassFlags("process", 15*time.Minute)
	embedLimit := p.fs.Int("embed-limit", pipeline.DefaultPassLimit, "Maximum articles to embed")
	clusterLimit := p.fs.Int("cluster-limit", pipeline.DefaultPassLimit, "Maximum unclustered articles to retry")
	rewriteLimit := p.fs.Int("rewrite-limit", 50, "Maximum lead articles to rewrite")
	skipRewrite := p.fs.Bool("skip-rewrite", false, "Stop after scoring")
	if code, ok := p.parse(args, map[string]*int{
		"embed-limit":   embedLimit,
		"cluster-limit": clusterLimit,
		"rewrite-limit": rewriteLimit,
	}); !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *p.timeout)
	defer cancel()

	s, ok := openSession(ctx, p.envLoader, "process")
	if !ok {
		return 1
	}
	defer s.Close()

	svc, err := s.pipelineService(!*skipRewrite)
	if err != nil {
		return failPass(s, "process", err)
	}
	result, err := svc.Process(ctx, pipeline.ProcessOptions{
		EmbedLimit:   *embedLimit,
		ClusterLimit: *clusterLimit,
		RewriteLimit: *rewriteLimit,
	})
	if err != nil {
		return failPass(s, "process", err)
	}

	fmt.Printf(
		"process run_id=%s embedded=%d clustered=%d unclustered=%d scored_clusters=%d accepted=%d rejected=%d skipped=%d failed=%d\n",
		s.runID,
		result.Embed.Embedded,
		result.Cluster.Clustered,
		result.Cluster.Unclustered,
		result.Score.Clusters,
		result.Rewrite.Accepted,
		result.Rewrite.Rejected,
		result.Rewrite.Skipped,
		result.Embed.Failed+result.Cluster.Failed+result.Rewrite.Failed,
	)
	return 0
}

func failPass(s *session, pass string, err error) int {
	s.logger.Error().Err(err).Str("pass", pass).Msg("pass failed")
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", pass, err)
	return 1
}
