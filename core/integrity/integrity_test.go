package integrity

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/davidahmann/ctxlib/core/estimate"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
	"github.com/davidahmann/ctxlib/internal/testutil"
)

var verifiedAt = time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

func record(t *testing.T, root string, relativePath string, tokens int) schemacontextlib.FileRecord {
	t.Helper()
	testutil.WriteTokenFile(t, root, relativePath, tokens)
	return schemacontextlib.FileRecord{
		Path:        relativePath,
		Fingerprint: estimate.Fingerprint(testutil.TokenContent(tokens, relativePath)),
		Tokens:      tokens,
	}
}

func TestVerifyClassifiesEveryRecord(t *testing.T) {
	root := t.TempDir()
	unchanged := record(t, root, "docs/same.md", 10)
	changed := record(t, root, "docs/edit.md", 10)
	deleted := record(t, root, "docs/gone.md", 10)
	directory := record(t, root, "docs/now-a-dir.md", 10)
	extra := record(t, root, "specs/extra.md", 5)

	testutil.WriteFile(t, filepath.Join(root, "docs", "edit.md"), []byte("edited content"))
	if err := os.Remove(filepath.Join(root, "docs", "gone.md")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "docs", "now-a-dir.md")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "docs", "now-a-dir.md"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	manifest := schemacontextlib.Manifest{Sources: map[string][]schemacontextlib.FileRecord{
		"specs": {extra},
		"core":  {unchanged, changed, deleted, directory},
	}}
	result := Verify(manifest, root, verifiedAt)

	if result.TotalFiles != 5 || len(result.Unchanged) != 2 || len(result.Changed) != 1 || len(result.Deleted) != 2 || len(result.Errors) != 0 {
		t.Fatalf("unexpected classification: %#v", result)
	}
	if !result.VerifiedAt.Equal(verifiedAt) {
		t.Fatalf("unexpected verified_at %v", result.VerifiedAt)
	}
	if result.Unchanged[0].Category != "core" || result.Unchanged[1].Category != "specs" {
		t.Fatalf("expected categories in name order: %#v", result.Unchanged)
	}
	change := result.Changed[0]
	if change.Path != "docs/edit.md" || change.StoredFingerprint != changed.Fingerprint || change.CurrentFingerprint != estimate.Fingerprint([]byte("edited content")) {
		t.Fatalf("unexpected change entry: %#v", change)
	}
	if result.Deleted[0].Path != "docs/gone.md" || result.Deleted[1].Path != "docs/now-a-dir.md" {
		t.Fatalf("unexpected deleted entries: %#v", result.Deleted)
	}
	if !result.HasDrift() {
		t.Fatalf("expected drift")
	}

	entries := result.DriftEntries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 drift entries, got %#v", entries)
	}
	if entries[0].Status != schemacontextlib.DriftChanged || entries[0].CurrentFingerprint == nil || *entries[0].CurrentFingerprint != change.CurrentFingerprint {
		t.Fatalf("unexpected changed drift entry: %#v", entries[0])
	}
	if entries[1].Status != schemacontextlib.DriftDeleted || entries[1].CurrentFingerprint != nil || entries[1].OriginalFingerprint != deleted.Fingerprint {
		t.Fatalf("unexpected deleted drift entry: %#v", entries[1])
	}
}

func TestVerifyUnreadableFileIsAnError(t *testing.T) {
	root := t.TempDir()
	locked := record(t, root, "locked.md", 10)
	open := record(t, root, "open.md", 10)
	lockedPath := filepath.Join(root, "locked.md")

	verifier := Verifier{ReadFile: func(path string) ([]byte, error) {
		if path == lockedPath {
			return nil, fmt.Errorf("open %s: %w", path, fs.ErrPermission)
		}
		return os.ReadFile(path)
	}}
	result := verifier.Verify(schemacontextlib.Manifest{Sources: map[string][]schemacontextlib.FileRecord{
		"core": {locked, open},
	}}, root, verifiedAt)

	if result.TotalFiles != 2 || len(result.Errors) != 1 || len(result.Unchanged) != 1 {
		t.Fatalf("expected one error and one unchanged entry, got %#v", result)
	}
	if result.Errors[0].Path != "locked.md" || !strings.Contains(result.Errors[0].Error, "permission") {
		t.Fatalf("unexpected error entry: %#v", result.Errors[0])
	}
	if result.HasDrift() || len(result.DriftEntries()) != 0 {
		t.Fatalf("errors must not count as drift")
	}
}

func TestVerifyPathUnderReplacedDirectoryIsDeleted(t *testing.T) {
	root := t.TempDir()
	nested := record(t, root, "specs/a.md", 10)
	if err := os.RemoveAll(filepath.Join(root, "specs")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	testutil.WriteFile(t, filepath.Join(root, "specs"), []byte("no longer a directory"))

	result := Verify(schemacontextlib.Manifest{Sources: map[string][]schemacontextlib.FileRecord{
		"core": {nested},
	}}, root, verifiedAt)
	if result.TotalFiles != 1 || len(result.Deleted) != 1 || len(result.Errors) != 0 {
		t.Fatalf("expected the nested record to be deleted, got %#v", result)
	}
	if result.Deleted[0].Path != "specs/a.md" {
		t.Fatalf("unexpected deleted entry: %#v", result.Deleted[0])
	}
}

func TestVerifyEmptyManifest(t *testing.T) {
	result := Verify(schemacontextlib.Manifest{}, t.TempDir(), verifiedAt)
	if result.TotalFiles != 0 || result.HasDrift() || result.Unchanged == nil || result.Errors == nil {
		t.Fatalf("unexpected empty result: %#v", result)
	}
	if entries := result.DriftEntries(); len(entries) != 0 || entries == nil {
		t.Fatalf("expected empty non-nil drift entries, got %#v", entries)
	}
}

func TestVerifyAbsolutePath(t *testing.T) {
	outside := t.TempDir()
	absolute := testutil.WriteTokenFile(t, outside, "abs.md", 3)
	result := Verify(schemacontextlib.Manifest{Sources: map[string][]schemacontextlib.FileRecord{
		"core": {{Path: filepath.ToSlash(absolute), Fingerprint: estimate.Fingerprint(testutil.TokenContent(3, "abs.md"))}},
	}}, t.TempDir(), verifiedAt)
	if len(result.Unchanged) != 1 {
		t.Fatalf("expected absolute path to verify unchanged, got %#v", result)
	}
}

func TestVerifyClassificationIsComplete(t *testing.T) {
	root := t.TempDir()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("every record lands in exactly one bucket", prop.ForAll(
		func(actions []int) bool {
			records := make([]schemacontextlib.FileRecord, 0, len(actions))
			expected := map[int]int{}
			for index, action := range actions {
				relativePath := fmt.Sprintf("run/f-%03d.md", index)
				current := record(t, root, relativePath, index%7)
				switch action % 3 {
				case 1:
					testutil.WriteFile(t, filepath.Join(root, filepath.FromSlash(relativePath)), []byte(fmt.Sprintf("edited-%d", index)))
				case 2:
					_ = os.Remove(filepath.Join(root, filepath.FromSlash(relativePath)))
				}
				expected[action%3]++
				records = append(records, current)
			}
			result := Verify(schemacontextlib.Manifest{Sources: map[string][]schemacontextlib.FileRecord{"core": records}}, root, verifiedAt)
			if result.TotalFiles != len(actions) {
				return false
			}
			if len(result.Unchanged)+len(result.Changed)+len(result.Deleted)+len(result.Errors) != result.TotalFiles {
				return false
			}
			return len(result.Unchanged) == expected[0] && len(result.Changed) == expected[1] && len(result.Deleted) == expected[2]
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
