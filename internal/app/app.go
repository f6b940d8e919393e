package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "embed":
		return runEmbed(args[1:])
	case "cluster":
		return runCluster(args[1:])
	case "score":
		return runScore(args[1:])
	case "rewrite":
		return runRewrite(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "check-headline":
		return runCheckHeadline(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "storyline CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  storyline <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health          Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate        Validate article payload JSON files")
	fmt.Fprintln(os.Stderr, "  ingest          Store, embed and cluster article payload files")
	fmt.Fprintln(os.Stderr, "  embed           Embed recent articles that have no vector")
	fmt.Fprintln(os.Stderr, "  cluster         Retry clustering for recent unclustered articles")
	fmt.Fprintln(os.Stderr, "  score           Recompute cluster scores and lead articles")
	fmt.Fprintln(os.Stderr, "  rewrite         Generate and validate headlines for lead articles")
	fmt.Fprintln(os.Stderr, "  process         Run embed + cluster + score + rewrite in sequence")
	fmt.Fprintln(os.Stderr, "  run-once        Alias for process")
	fmt.Fprintln(os.Stderr, "  check-headline  Validate one candidate headline without a database")
	fmt.Fprintln(os.Stderr, "  serve           Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"storyline <command> -h\" for command-specific flags.")
}
