// Package library runs the gather and verify operations end to end: it
// resolves settings, touches the filesystem and persists the manifest.
// The CLI and the MCP server are thin renderers over it.
package library

import (
	"context"
	"time"

	"github.com/davidahmann/ctxlib/core/advisor"
	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/fsx"
	"github.com/davidahmann/ctxlib/core/gather"
	"github.com/davidahmann/ctxlib/core/integrity"
	"github.com/davidahmann/ctxlib/core/manifest"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
)

type GatherOutcome struct {
	ManifestPath string
	Manifest     schemacontextlib.Manifest
	Skipped      []gather.SkippedCandidate
}

// Gather selects context for workflowDir and writes the manifest into it.
// Nothing is written when selection fails.
func Gather(ctx context.Context, workflowDir string, root string, settings Settings, now time.Time) (GatherOutcome, error) {
	result, err := gather.New(settings.Gather).Gather(ctx, gather.Request{
		WorkflowDir: workflowDir,
		Root:        root,
		Budget:      settings.Allocation,
		Now:         now,
	})
	if err != nil {
		return GatherOutcome{}, err
	}
	path := manifest.Path(workflowDir)
	if err := manifest.Save(path, result.Manifest); err != nil {
		return GatherOutcome{}, err
	}
	return GatherOutcome{ManifestPath: path, Manifest: result.Manifest, Skipped: result.Skipped}, nil
}

type VerifyOutcome struct {
	ManifestPath   string
	ManifestDigest string
	Manifest       schemacontextlib.Manifest
	Result         integrity.Result
	Recommendation advisor.Recommendation
	Explanation    string
	Updated        bool
}

// ExitCode is the process status the recommendation maps to.
func (outcome VerifyOutcome) ExitCode() int {
	return advisor.ExitCode(outcome.Recommendation)
}

// Verify checks the stored manifest of workflowDir against the files under
// root. With update set the integrity block is written back; the report is
// only returned once that write has succeeded.
func Verify(workflowDir string, root string, policy advisor.Policy, update bool, now time.Time) (VerifyOutcome, error) {
	if !fsx.IsDir(workflowDir) {
		return VerifyOutcome{}, ctxerrors.Precondition(
			"workflow_not_found",
			"pass an existing workflow directory",
			"workflow directory not found: %s", workflowDir,
		)
	}
	path := manifest.Path(workflowDir)
	stored, err := manifest.Load(path)
	if err != nil {
		return VerifyOutcome{}, err
	}

	result := integrity.Verify(stored, root, now)
	recommendation, explanation := policy.Recommend(len(result.Changed), len(result.Deleted), result.TotalFiles)

	outcome := VerifyOutcome{
		ManifestPath:   path,
		Manifest:       stored,
		Result:         result,
		Recommendation: recommendation,
		Explanation:    explanation,
	}
	if update {
		updated, err := manifest.Update(path, result)
		if err != nil {
			return VerifyOutcome{}, ctxerrors.Wrap(err, ctxerrors.CategoryIOFailure, "manifest_update_failed", "check write permissions on the workflow directory", false)
		}
		outcome.Manifest = updated
		outcome.Updated = true
	}
	digest, err := manifest.Digest(outcome.Manifest)
	if err != nil {
		return VerifyOutcome{}, ctxerrors.Wrap(err, ctxerrors.CategoryInternalFailure, "manifest_digest_failed", "", false)
	}
	outcome.ManifestDigest = digest
	return outcome, nil
}
