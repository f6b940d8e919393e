package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"horse.fit/storyline/internal/cli"
	"horse.fit/storyline/internal/cluster"
	"horse.fit/storyline/internal/config"
	"horse.fit/storyline/internal/db"
	"horse.fit/storyline/internal/embedding"
	"horse.fit/storyline/internal/generator"
	"horse.fit/storyline/internal/ingest"
	"horse.fit/storyline/internal/logging"
	"horse.fit/storyline/internal/pipeline"
	"horse.fit/storyline/internal/rewrite"
	"horse.fit/storyline/internal/scoring"
	"horse.fit/storyline/internal/tuning"
)

// session holds what every database-backed command needs.
type session struct {
	cfg    *config.Config
	logger zerolog.Logger
	runID  string
	tuning tuning.Tuning
	pool   *db.Pool
}

// openSession loads env, config, logger and tuning, then connects to the
// database. On failure it has already reported to stderr.
func openSession(ctx context.Context, envLoader *cli.EnvLoader, command string) (*session, bool) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, false
	}

	baseLogger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, false
	}
	logger, runID := logging.WithRun(baseLogger, command)

	t, err := tuning.Load(cfg.TuningFile)
	if err != nil {
		logger.Error().Err(err).Str("tuning_file", cfg.TuningFile).Msg("failed to load tuning")
		fmt.Fprintf(os.Stderr, "Failed to load tuning: %v\n", err)
		return nil, false
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}

	return &session{cfg: cfg, logger: logger, runID: runID, tuning: t, pool: pool}, true
}

func (s *session) Close() {
	if s == nil || s.pool == nil {
		return
	}
	if err := s.pool.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("close database pool")
	}
}

func (s *session) clusterEngine() *cluster.Engine {
	return cluster.NewEngine(cluster.NewPGStore(s.pool), s.tuning.Cluster, s.logger)
}

func (s *session) scoringEngine() *scoring.Engine {
	return scoring.NewEngine(s.pool, s.tuning.Scoring, s.logger)
}

func (s *session) validator() (*rewrite.Validator, error) {
	return rewrite.NewValidator(s.tuning.Rewrite)
}

func (s *session) embeddingProvider() (embedding.Provider, error) {
	return embedding.NewFromConfig(s.cfg)
}

func (s *session) rewriteRunner() (*rewrite.Runner, error) {
	validator, err := s.validator()
	if err != nil {
		return nil, err
	}
	gen, err := generator.NewRegistryFromConfig(s.cfg).Generator(s.cfg.GeneratorProvider)
	if err != nil {
		return nil, err
	}
	return rewrite.NewRunner(s.pool, gen, validator, rewrite.RunnerOptions{
		Timeout:     s.cfg.GeneratorTimeout,
		Concurrency: s.cfg.BatchConcurrency,
	}, s.logger), nil
}

func (s *session) ingestService() (*ingest.Service, error) {
	provider, err := s.embeddingProvider()
	if err != nil {
		return nil, err
	}
	return ingest.NewService(s.pool, provider, s.clusterEngine(), ingest.NewSourceCache(), s.logger), nil
}

// pipelineService wires every pass. withRewrite=false leaves the rewrite
// pass out so embed/cluster/score do not require a generator.
func (s *session) pipelineService(withRewrite bool) (*pipeline.Service, error) {
	provider, err := s.embeddingProvider()
	if err != nil {
		return nil, err
	}
	deps := pipeline.Deps{
		Store:       s.pool,
		Provider:    provider,
		Clusterer:   s.clusterEngine(),
		Scorer:      s.scoringEngine(),
		Tuning:      s.tuning,
		Concurrency: s.cfg.BatchConcurrency,
	}
	if withRewrite {
		runner, err := s.rewriteRunner()
		if err != nil {
			return nil, err
		}
		deps.Rewriter = runner
	}
	return pipeline.NewService(deps, s.logger), nil
}
