package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"horse.fit/storyline/internal/cli"
	"horse.fit/storyline/internal/rewrite"
	"horse.fit/storyline/internal/tuning"
)

func runCheckHeadline(args []string) int {
	return checkHeadline(args, os.Stdout)
}

// checkHeadline prints the verdict as JSON. It exits 0 when the candidate is
// accepted and 1 when it is rejected.
func checkHeadline(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("check-headline", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	original := fs.String("original", "", "Original headline")
	candidate := fs.String("candidate", "", "Candidate headline")
	source := fs.String("source", "", "Extra source text such as the dek")
	body := fs.String("body", "", "Article body text")
	tuningFile := fs.String("tuning", "", "Tuning YAML file (defaults to TUNING_FILE)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*original) == "" {
		fmt.Fprintln(os.Stderr, "--original is required")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	path := strings.TrimSpace(*tuningFile)
	if path == "" {
		path = os.Getenv("TUNING_FILE")
	}
	t, err := tuning.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load tuning: %v\n", err)
		return 1
	}
	validator, err := rewrite.NewValidator(t.Rewrite)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build headline validator: %v\n", err)
		return 1
	}

	verdict := validator.Validate(*original, *candidate, validator.SourceContext(*original, *source, *body))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(verdict); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write verdict: %v\n", err)
		return 1
	}
	if !verdict.Accepted {
		return 1
	}
	return 0
}
