package app

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"horse.fit/storyline/internal/payloadschema"
)

type validateResult struct {
	Files   int
	Scanned int
	Valid   int
	Invalid int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "", "Directory containing .json article payload files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := inputFiles(fs.Args(), *dir, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 2
	}

	result := validateResult{}
	for _, path := range files {
		result.Files++
		articles, invalid := readPayloadFile(path)
		result.Scanned += len(articles) + invalid
		result.Valid += len(articles)
		result.Invalid += invalid
	}

	fmt.Printf(
		"validate files=%d scanned=%d valid=%d invalid=%d\n",
		result.Files,
		result.Scanned,
		result.Valid,
		result.Invalid,
	)

	if result.Scanned == 0 {
		fmt.Fprintln(os.Stderr, "Validation failed: no article payloads found")
		return 1
	}
	if result.Invalid > 0 {
		return 1
	}
	return 0
}

// readPayloadFile returns the valid articles of one file and how many
// payloads were rejected. Rejections are reported on stderr.
func readPayloadFile(path string) ([]*payloadschema.Article, int) {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID %s: read failed: %v\n", path, err)
		return nil, 1
	}

	articles, errs, err := payloadschema.ValidateArticleBatch(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
		return nil, 1
	}

	valid := make([]*payloadschema.Article, 0, len(articles))
	invalid := 0
	for i, article := range articles {
		if errs[i] != nil {
			invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s[%d]: %v\n", path, i, errs[i])
			continue
		}
		valid = append(valid, article)
	}
	return valid, invalid
}

// inputFiles resolves positional file arguments plus an optional directory
// scan into a sorted, de-duplicated list.
func inputFiles(paths []string, dir string, recursive bool) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			found, err := collectJSONFiles(path, recursive)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				add(f)
			}
			continue
		}
		add(path)
	}

	if strings.TrimSpace(dir) != "" {
		found, err := collectJSONFiles(dir, recursive)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no input files given (pass file paths or --dir)")
	}
	sort.Strings(files)
	return files, nil
}

func collectJSONFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(cleanRoot)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cleanRoot, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
				files = append(files, filepath.Join(cleanRoot, entry.Name()))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != cleanRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}
