// Package integrity compares a stored context manifest against the live
// filesystem and classifies every recorded file.
package integrity

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/davidahmann/ctxlib/core/estimate"
	"github.com/davidahmann/ctxlib/core/fsx"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
)

type FileStatus struct {
	Category           string `json:"category"`
	Path               string `json:"path"`
	StoredFingerprint  string `json:"stored_fingerprint"`
	CurrentFingerprint string `json:"current_fingerprint,omitempty"`
}

type FileError struct {
	Category string `json:"category"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// Result is the outcome of one verification pass. Errors count toward
// TotalFiles but never toward drift.
type Result struct {
	VerifiedAt time.Time    `json:"verified_at"`
	TotalFiles int          `json:"total_files"`
	Unchanged  []FileStatus `json:"unchanged"`
	Changed    []FileStatus `json:"changed"`
	Deleted    []FileStatus `json:"deleted"`
	Errors     []FileError  `json:"errors"`
}

// Verifier classifies manifest records against the filesystem. A nil
// ReadFile reads from disk; existence is always checked with os.Stat.
type Verifier struct {
	ReadFile func(path string) ([]byte, error)
}

// Verify classifies every FileRecord with the default Verifier.
func Verify(manifest schemacontextlib.Manifest, root string, now time.Time) Result {
	return Verifier{}.Verify(manifest, root, now)
}

// Verify classifies every FileRecord across all source categories, visiting
// categories in name order and records in stored order. It performs no writes.
func (verifier Verifier) Verify(manifest schemacontextlib.Manifest, root string, now time.Time) Result {
	readFile := verifier.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	if root == "" {
		root = "."
	}
	if now.IsZero() {
		now = time.Now()
	}
	result := Result{
		VerifiedAt: now.UTC(),
		Unchanged:  []FileStatus{},
		Changed:    []FileStatus{},
		Deleted:    []FileStatus{},
		Errors:     []FileError{},
	}

	categories := make([]string, 0, len(manifest.Sources))
	for category := range manifest.Sources {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		for _, record := range manifest.Sources[category] {
			result.TotalFiles++
			status := FileStatus{
				Category:          category,
				Path:              record.Path,
				StoredFingerprint: record.Fingerprint,
			}
			resolved := resolve(root, record.Path)

			info, err := os.Stat(resolved)
			if err != nil && !fsx.IsNotExist(err) {
				result.Errors = append(result.Errors, FileError{Category: category, Path: record.Path, Error: err.Error()})
				continue
			}
			if err != nil || !info.Mode().IsRegular() {
				result.Deleted = append(result.Deleted, status)
				continue
			}

			content, err := readFile(resolved)
			if err != nil {
				result.Errors = append(result.Errors, FileError{Category: category, Path: record.Path, Error: err.Error()})
				continue
			}
			status.CurrentFingerprint = estimate.Fingerprint(content)
			if status.CurrentFingerprint == record.Fingerprint {
				result.Unchanged = append(result.Unchanged, status)
				continue
			}
			result.Changed = append(result.Changed, status)
		}
	}
	return result
}

// HasDrift reports whether any file was changed or deleted.
func (result Result) HasDrift() bool {
	return len(result.Changed) > 0 || len(result.Deleted) > 0
}

// DriftEntries lists changed files followed by deleted files in the
// persisted drift_details shape. Deleted entries carry no current fingerprint.
func (result Result) DriftEntries() []schemacontextlib.DriftEntry {
	entries := make([]schemacontextlib.DriftEntry, 0, len(result.Changed)+len(result.Deleted))
	for _, status := range result.Changed {
		current := status.CurrentFingerprint
		entries = append(entries, schemacontextlib.DriftEntry{
			Path:                status.Path,
			Status:              schemacontextlib.DriftChanged,
			OriginalFingerprint: status.StoredFingerprint,
			CurrentFingerprint:  &current,
		})
	}
	for _, status := range result.Deleted {
		entries = append(entries, schemacontextlib.DriftEntry{
			Path:                status.Path,
			Status:              schemacontextlib.DriftDeleted,
			OriginalFingerprint: status.StoredFingerprint,
		})
	}
	return entries
}

func resolve(root string, recordPath string) string {
	native := filepath.FromSlash(recordPath)
	if filepath.IsAbs(native) {
		return filepath.Clean(native)
	}
	return filepath.Join(root, native)
}
