package estimate

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var defaultExtensions = []string{
	".ts", ".tsx", ".js", ".jsx", ".py", ".go", ".md", ".yaml", ".yml",
	".json", ".css", ".scss", ".html", ".sql", ".sh", ".bash",
}

var skippedPathParts = []string{
	"node_modules", ".git", "dist", "build", ".next",
	"__pycache__", ".pytest_cache", "coverage",
}

type FileEstimate struct {
	Path        string `json:"path"`
	Tokens      int    `json:"tokens"`
	Lines       int    `json:"lines"`
	Fingerprint string `json:"fingerprint"`
	SizeBytes   int    `json:"size_bytes"`
	Error       string `json:"error,omitempty"`
}

// AnalyzeFile reads path and reports its size metrics. Read failures are
// returned inside the estimate so directory scans can keep going.
func AnalyzeFile(path string) FileEstimate {
	// #nosec G304 -- path is explicit local user input or a walked descendant of one.
	content, err := os.ReadFile(path)
	if err != nil {
		return FileEstimate{Path: path, Error: err.Error()}
	}
	return FileEstimate{
		Path:        path,
		Tokens:      Estimate(content),
		Lines:       countLines(content),
		Fingerprint: Fingerprint(content),
		SizeBytes:   len(content),
	}
}

type DirectoryOptions struct {
	// Extensions limits which files are analyzed; empty means the default code/doc set.
	Extensions []string
}

// AnalyzeDirectory walks root in lexical order and analyzes every file whose
// extension is selected, skipping vendored and generated trees.
func AnalyzeDirectory(root string, options DirectoryOptions) ([]FileEstimate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}
	extensions := options.Extensions
	if len(extensions) == 0 {
		extensions = defaultExtensions
	}
	selected := make(map[string]struct{}, len(extensions))
	for _, extension := range extensions {
		selected[strings.ToLower(extension)] = struct{}{}
	}

	results := make([]FileEstimate, 0)
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			results = append(results, FileEstimate{Path: path, Error: err.Error()})
			return nil
		}
		if entry.IsDir() {
			if path != root && isSkipped(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := selected[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		results = append(results, AnalyzeFile(path))
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return results, nil
}

type BudgetAnalysis struct {
	Files     int            `json:"files"`
	Tokens    int            `json:"tokens"`
	Budget    int            `json:"budget"`
	Within    bool           `json:"within_budget"`
	Remaining int            `json:"remaining,omitempty"`
	Over      int            `json:"over,omitempty"`
	Largest   []FileEstimate `json:"largest,omitempty"`
}

// AnalyzeBudget totals the successful estimates and, when over budget, lists
// the largest files as deferral candidates.
func AnalyzeBudget(estimates []FileEstimate, budget int, largest int) BudgetAnalysis {
	analysis := BudgetAnalysis{Budget: budget}
	ok := make([]FileEstimate, 0, len(estimates))
	for _, item := range estimates {
		if item.Error != "" {
			continue
		}
		ok = append(ok, item)
		analysis.Tokens += item.Tokens
	}
	analysis.Files = len(ok)
	if analysis.Tokens <= budget {
		analysis.Within = true
		analysis.Remaining = budget - analysis.Tokens
		return analysis
	}
	analysis.Over = analysis.Tokens - budget
	sort.SliceStable(ok, func(i, j int) bool {
		return ok[i].Tokens > ok[j].Tokens
	})
	if largest > len(ok) {
		largest = len(ok)
	}
	analysis.Largest = ok[:largest]
	return analysis
}

func isSkipped(name string) bool {
	for _, part := range skippedPathParts {
		if name == part {
			return true
		}
	}
	return false
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	lines := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		lines++
	}
	return lines
}
