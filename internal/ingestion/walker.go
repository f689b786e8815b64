package ingestion

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// WalkSourceFiles walks the repository and returns every parseable
// source file, skipping build output and dependency directories.
func WalkSourceFiles(repoPath string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if isSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// shouldSkipDir returns true if a directory should be excluded from parsing
func shouldSkipDir(name string) bool {
	excludeDirs := []string{
		".git",
		"_build",
		"deps",
		"node_modules",
		"cover",
		".elixir_ls",
		".lexical",
		"dist",
		"out",
		".idea",
		".vscode",
	}

	for _, exclude := range excludeDirs {
		if name == exclude {
			return true
		}
	}
	return false
}

// isSupportedFile returns true if a registered extractor handles the
// file and it is not generated output.
func isSupportedFile(path string) bool {
	switch filepath.Ext(path) {
	case ".ex", ".exs", ".heex":
	default:
		return false
	}

	return !isGeneratedFile(path)
}

// isGeneratedFile returns true if the file is likely compiler or
// formatter output rather than hand-written source.
func isGeneratedFile(path string) bool {
	slashed := filepath.ToSlash(path)

	generatedDirs := []string{
		"/_build/",
		"/deps/",
		"/cover/",
		"/.elixir_ls/",
		"/priv/static/",
	}
	for _, dir := range generatedDirs {
		if strings.Contains(slashed, dir) {
			return true
		}
	}

	return false
}

// FileStats holds counts of discovered files by type
type FileStats struct {
	Total     int
	Elixir    int
	Scripts   int
	Templates int
	Skipped   int
}

// CountFiles walks the repository and counts source files by type,
// without parsing anything. Used for the dry-run summary.
func CountFiles(repoPath string) (*FileStats, error) {
	stats := &FileStats{}

	err := filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		switch filepath.Ext(path) {
		case ".ex":
			stats.Total++
			stats.Elixir++
		case ".exs":
			stats.Total++
			stats.Scripts++
		case ".heex":
			stats.Total++
			stats.Templates++
		default:
			return nil
		}

		if isGeneratedFile(path) {
			stats.Skipped++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
