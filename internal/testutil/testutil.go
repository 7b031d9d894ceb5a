package testutil

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func RepoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to locate testutil source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func BuildCtxlibBinary(t *testing.T, root string) string {
	t.Helper()
	binDir := t.TempDir()
	binName := "ctxlib"
	if runtime.GOOS == "windows" {
		binName = "ctxlib.exe"
	}
	binPath := filepath.Join(binDir, binName)

	// #nosec G204 -- arguments are fixed and used only in test binaries.
	build := exec.Command("go", "build", "-o", binPath, "./cmd/ctxlib")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build ctxlib binary: %v\n%s", err, string(out))
	}
	return binPath
}

func CommandExitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected command exit error, got: %v", err)
	}
	return exitErr.ExitCode()
}

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TokenContent returns ASCII content that estimates to exactly tokens units.
// seed varies the bytes so fingerprints differ between files of equal size.
func TokenContent(tokens int, seed string) []byte {
	if tokens <= 0 {
		return []byte{}
	}
	size := tokens * 4
	if seed == "" {
		seed = "x"
	}
	repeated := strings.Repeat(seed, size/len(seed)+1)
	return []byte(repeated[:size])
}

// WriteTokenFile writes root/relativePath with TokenContent(tokens, relativePath).
func WriteTokenFile(t *testing.T, root string, relativePath string, tokens int) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relativePath))
	WriteFile(t, path, TokenContent(tokens, relativePath))
	return path
}

// WorkflowDir creates root/.workflows/active/<name> and returns its path.
func WorkflowDir(t *testing.T, root string, name string) string {
	t.Helper()
	path := filepath.Join(root, ".workflows", "active", name)
	if err := os.MkdirAll(path, 0o750); err != nil {
		t.Fatalf("create workflow dir: %v", err)
	}
	return path
}

func MustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	content, err := os.ReadFile(path) // #nosec G304 -- test helper for controlled paths.
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}
