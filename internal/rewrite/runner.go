package rewrite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/storyline/internal/batch"
	"horse.fit/storyline/internal/clock"
	"horse.fit/storyline/internal/db"
	"horse.fit/storyline/internal/langdetect"
)

const unsupportedLanguagePrefix = "unsupported_language:"

// Generator produces a candidate headline for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

type Store interface {
	ListRewriteCandidates(ctx context.Context, limit int) ([]db.RewriteCandidate, error)
	RecordRewriteOutcome(ctx context.Context, outcome db.RewriteOutcome) (bool, error)
}

type RunnerOptions struct {
	Timeout     time.Duration
	Concurrency int
	// DetectLanguage defaults to langdetect.Detect.
	DetectLanguage func(text string) (string, bool)
}

type RunResult struct {
	Candidates int
	Accepted   int
	Rejected   int
	Skipped    int
	Failed     int
	// AlreadyDecided counts articles another run decided first.
	AlreadyDecided int
}

type Runner struct {
	store     Store
	generator Generator
	validator *Validator
	opts      RunnerOptions
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRunner(store Store, generator Generator, validator *Validator, opts RunnerOptions, logger zerolog.Logger) *Runner {
	if opts.DetectLanguage == nil {
		opts.DetectLanguage = langdetect.Detect
	}
	return &Runner{
		store:     store,
		generator: generator,
		validator: validator,
		opts:      opts,
		logger:    logger,
		now:       clock.UTC,
	}
}

// RewritePending generates, validates and records headlines for up to limit
// lead articles without a rewrite decision. Per-article failures are counted
// and leave the article eligible for the next run.
func (r *Runner) RewritePending(ctx context.Context, limit int) (RunResult, error) {
	if r == nil || r.store == nil || r.generator == nil || r.validator == nil {
		return RunResult{}, fmt.Errorf("rewrite runner is not initialized")
	}
	if limit <= 0 {
		return RunResult{}, nil
	}

	candidates, err := r.store.ListRewriteCandidates(ctx, limit)
	if err != nil {
		return RunResult{}, fmt.Errorf("list rewrite candidates: %w", err)
	}

	var (
		mu     sync.Mutex
		result = RunResult{Candidates: len(candidates)}
	)
	batchResult := batch.Run(ctx, candidates, r.opts.Concurrency, func(ctx context.Context, c db.RewriteCandidate) error {
		outcome, applied, err := r.RewriteOne(ctx, c)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			r.logger.Warn().Err(err).Int64("article_id", c.ArticleID).Msg("rewrite failed")
			return err
		}
		if !applied {
			result.AlreadyDecided++
			return nil
		}
		switch outcome.Status {
		case db.RewriteStatusAccepted:
			result.Accepted++
		case db.RewriteStatusRejected:
			result.Rejected++
		case db.RewriteStatusSkipped:
			result.Skipped++
		}
		return nil
	})
	// Items that never ran because ctx ended are failures too.
	result.Failed = batchResult.Failed

	r.logger.Info().
		Int("candidates", result.Candidates).
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("already_decided", result.AlreadyDecided).
		Msg("rewrite pass complete")
	return result, nil
}

// RewriteOne handles a single candidate. A generator error is recorded as a
// failed event and returned; the article keeps its original title.
func (r *Runner) RewriteOne(ctx context.Context, c db.RewriteCandidate) (db.RewriteOutcome, bool, error) {
	outcome := db.RewriteOutcome{
		ArticleID: c.ArticleID,
		Generator: r.generator.Name(),
	}

	if code, ok := r.opts.DetectLanguage(c.Title); ok && code != "en" {
		outcome.Status = db.RewriteStatusSkipped
		outcome.Reason = stringPtr(unsupportedLanguagePrefix + code)
		return r.record(ctx, outcome)
	}

	dek := deref(c.Dek)
	body := deref(c.BodyText)
	prompt := BuildPrompt(c.Title, dek, excerpt(body, r.validator.cfg.BodyExcerptChars))

	genCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	raw, genErr := r.generator.Generate(genCtx, prompt)
	if genErr != nil {
		outcome.Status = db.RewriteStatusFailed
		outcome.Reason = stringPtr(truncate(genErr.Error(), 500))
		if _, err := r.store.RecordRewriteOutcome(ctx, r.stamp(outcome)); err != nil {
			return outcome, false, fmt.Errorf("record failed rewrite article_id=%d: %w", c.ArticleID, err)
		}
		return outcome, false, fmt.Errorf("generate headline article_id=%d: %w", c.ArticleID, genErr)
	}

	verdict := r.validator.Validate(c.Title, raw, r.validator.SourceContext(c.Title, dek, body))
	outcome.Candidate = stringPtr(verdict.Candidate)
	if verdict.Accepted {
		outcome.Status = db.RewriteStatusAccepted
	} else {
		outcome.Status = db.RewriteStatusRejected
		outcome.Reason = stringPtr(verdict.Reason)
	}

	r.logger.Debug().
		Int64("article_id", c.ArticleID).
		Str("status", outcome.Status).
		Str("reason", verdict.Reason).
		Strs("trail", verdict.Trail).
		Msg("rewrite verdict")
	return r.record(ctx, outcome)
}

func (r *Runner) record(ctx context.Context, outcome db.RewriteOutcome) (db.RewriteOutcome, bool, error) {
	outcome = r.stamp(outcome)
	applied, err := r.store.RecordRewriteOutcome(ctx, outcome)
	if err != nil {
		return outcome, false, fmt.Errorf("record rewrite article_id=%d: %w", outcome.ArticleID, err)
	}
	return outcome, applied, nil
}

func (r *Runner) stamp(outcome db.RewriteOutcome) db.RewriteOutcome {
	if outcome.At.IsZero() {
		outcome.At = r.now()
	}
	return outcome
}

func excerpt(body string, limit int) string {
	body = strings.TrimSpace(body)
	if limit <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit])
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPtr(s string) *string {
	return &s
}
