package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/estimate"
)

// LargestFileCount is how many deferral candidates an over-budget analysis lists.
const LargestFileCount = 5

type EstimateOutcome struct {
	Target    string
	Directory bool
	Files     []estimate.FileEstimate
	Analysis  estimate.BudgetAnalysis
}

// Estimate sizes a single file or every selected file under a directory and
// compares the total against tokenBudget. Per-file read failures inside a
// directory stay in Files with their Error set.
func Estimate(target string, tokenBudget int) (EstimateOutcome, error) {
	if tokenBudget < 0 {
		return EstimateOutcome{}, ctxerrors.Wrap(
			fmt.Errorf("budget must be >= 0, got %d", tokenBudget),
			ctxerrors.CategoryInvalidInput, "invalid_budget", "pass a non-negative token count", false,
		)
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EstimateOutcome{}, ctxerrors.Precondition("target_not_found", "pass an existing file or directory", "%s does not exist", target)
		}
		return EstimateOutcome{}, ctxerrors.Wrap(err, ctxerrors.CategoryIOFailure, "estimate_stat_failed", "", false)
	}

	outcome := EstimateOutcome{Target: target}
	switch {
	case info.Mode().IsRegular():
		file := estimate.AnalyzeFile(target)
		if file.Error != "" {
			return EstimateOutcome{}, ctxerrors.Wrap(errors.New(file.Error), ctxerrors.CategoryIOFailure, "estimate_read_failed", "check file permissions", false)
		}
		outcome.Files = []estimate.FileEstimate{file}
	case info.IsDir():
		files, err := estimate.AnalyzeDirectory(target, estimate.DirectoryOptions{})
		if err != nil {
			return EstimateOutcome{}, ctxerrors.Wrap(err, ctxerrors.CategoryIOFailure, "estimate_walk_failed", "", false)
		}
		outcome.Directory = true
		outcome.Files = files
	default:
		return EstimateOutcome{}, ctxerrors.Precondition("target_not_regular", "pass a regular file or a directory", "%s is neither a file nor a directory", target)
	}
	outcome.Analysis = estimate.AnalyzeBudget(outcome.Files, tokenBudget, LargestFileCount)
	return outcome, nil
}
