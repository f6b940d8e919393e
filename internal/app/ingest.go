package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/storyline/internal/cli"
	"horse.fit/storyline/internal/payloadschema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	dir := fs.String("dir", "", "Directory containing .json article payload files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	concurrency := fs.Int("concurrency", 0, "Articles ingested in parallel (0 uses BATCH_CONCURRENCY)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *concurrency < 0 {
		fmt.Fprintln(os.Stderr, "--concurrency must be >= 0")
		return 2
	}

	files, err := inputFiles(fs.Args(), *dir, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest setup failed: %v\n", err)
		return 2
	}

	var (
		articles []*payloadschema.Article
		invalid  int
	)
	for _, path := range files {
		valid, rejected := readPayloadFile(path)
		articles = append(articles, valid...)
		invalid += rejected
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s, ok := openSession(ctx, envLoader, "ingest")
	if !ok {
		return 1
	}
	defer s.Close()

	svc, err := s.ingestService()
	if err != nil {
		s.logger.Error().Err(err).Msg("ingest failed to build embedding provider")
		fmt.Fprintf(os.Stderr, "Ingest setup failed: %v\n", err)
		return 1
	}

	workers := *concurrency
	if workers == 0 {
		workers = s.cfg.BatchConcurrency
	}
	result := svc.IngestBatch(ctx, articles, workers)
	for _, itemErr := range result.Errors {
		s.logger.Warn().Err(itemErr.Err).Int("index", itemErr.Index).Msg("article ingest failed")
	}

	s.logger.Info().
		Int("files", len(files)).
		Int("invalid", invalid).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("clustered", result.Clustered).
		Int("unclustered", result.Unclustered).
		Int("failed", result.Failed).
		Msg("ingest completed")
	fmt.Printf(
		"ingest run_id=%s files=%d invalid=%d inserted=%d duplicates=%d clustered=%d unclustered=%d failed=%d\n",
		s.runID,
		len(files),
		invalid,
		result.Inserted,
		result.Duplicates,
		result.Clustered,
		result.Unclustered,
		result.Failed,
	)

	if invalid > 0 || result.Failed > 0 {
		return 1
	}
	return 0
}
