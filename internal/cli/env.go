package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// OverrideEnvVar names an env file that wins over the --env flag.
const OverrideEnvVar = "STORYLINE_ENV_FILE"

// EnvLoader loads a .env file chosen from the --env flag with fallbacks.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Load tries each candidate path in order and returns the first one loaded.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	log.SetOutput(os.Stderr)

	candidates := l.candidates()
	for _, candidate := range candidates {
		if err := godotenv.Overload(candidate.path); err != nil {
			if candidate.label == OverrideEnvVar {
				log.Printf("Warning: failed to load %s=%s", OverrideEnvVar, candidate.path)
			}
			continue
		}
		log.Printf("Loaded environment from %s: %s", candidate.label, candidate.path)
		return candidate.path, nil
	}

	requested := ""
	if l.value != nil {
		requested = strings.TrimSpace(*l.value)
	}
	return "", fmt.Errorf("failed to load env file from %s", requested)
}

type envCandidate struct {
	label string
	path  string
}

func (l *EnvLoader) candidates() []envCandidate {
	out := make([]envCandidate, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(label, path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, envCandidate{label: label, path: path})
	}

	add(OverrideEnvVar, os.Getenv(OverrideEnvVar))

	requested := l.defaultPath
	if l.value != nil && strings.TrimSpace(*l.value) != "" {
		requested = strings.TrimSpace(*l.value)
	}
	add("--env", requested)
	add("basename fallback", filepath.Base(requested))
	add("default", l.defaultPath)
	return out
}
