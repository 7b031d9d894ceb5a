package errors

import (
	stderrors "errors"
	"io/fs"
	"testing"
)

func TestWrapRoundTrip(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, CategoryIOFailure, "manifest_write_failed", "check workflow directory permissions", false)
	if err == nil {
		t.Fatal("expected wrapped error")
	}
	if CategoryOf(err) != CategoryIOFailure {
		t.Fatalf("unexpected category: %s", CategoryOf(err))
	}
	if CodeOf(err) != "manifest_write_failed" {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if HintOf(err) != "check workflow directory permissions" {
		t.Fatalf("unexpected hint: %s", HintOf(err))
	}
	if RetryableOf(err) {
		t.Fatal("expected retryable false")
	}
	if !stderrors.Is(err, base) {
		t.Fatal("expected wrapped error to preserve cause")
	}
}

func TestPreconditionFormatsMessage(t *testing.T) {
	err := Precondition("manifest_missing", "run gather first", "no manifest in %s", "wf")
	if err.Error() != "no manifest in wf" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if CategoryOf(err) != CategoryPrecondition {
		t.Fatalf("unexpected category: %s", CategoryOf(err))
	}
	if RetryableOf(err) {
		t.Fatal("precondition failures are never retryable")
	}
}

func TestUnknownErrorDefaults(t *testing.T) {
	err := stderrors.New("plain")
	if CategoryOf(err) != "" || CodeOf(err) != "" || HintOf(err) != "" || RetryableOf(err) {
		t.Fatalf("plain errors must not carry classification")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if got := Wrap(nil, CategoryInternalFailure, "internal_failure", "retry later", false); got != nil {
		t.Fatalf("expected nil wrapped error, got=%v", got)
	}
}

func TestWrapPreservesNestedSentinel(t *testing.T) {
	err := Wrap(&fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, CategoryPrecondition, "missing", "", false)
	if !stderrors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist to be reachable through wrap")
	}
}

func TestCategorySetIsStableAndUnique(t *testing.T) {
	seen := map[Category]struct{}{}
	for _, category := range Categories() {
		if category == "" {
			t.Fatalf("category must not be empty")
		}
		if _, exists := seen[category]; exists {
			t.Fatalf("duplicate category: %s", category)
		}
		seen[category] = struct{}{}
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(seen))
	}
}
