// Package gather selects reference files for a workflow under a core token
// budget and builds the context manifest describing the selection.
package gather

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/davidahmann/ctxlib/core/budget"
	"github.com/davidahmann/ctxlib/core/discover"
	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/estimate"
	"github.com/davidahmann/ctxlib/core/fsx"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
	"github.com/davidahmann/ctxlib/core/workflow"
)

const DefaultSpecLimit = 3

// Candidate is a file offered to the allocator. Path is either relative to
// the project root or absolute.
type Candidate struct {
	Path    string
	Purpose string
}

type SkipReason string

const (
	SkipMissing    SkipReason = "missing"
	SkipDirectory  SkipReason = "directory"
	SkipUnreadable SkipReason = "unreadable"
	SkipDuplicate  SkipReason = "duplicate"
)

// SkippedCandidate records a candidate that never reached the allocator.
// It is reported to the caller and never persisted.
type SkippedCandidate struct {
	Path   string     `json:"path"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

type RequiredReadingSource interface {
	RequiredReading(workflowDir string) ([]workflow.Entry, error)
}

type SpecDiscoverer interface {
	Discover(root string) ([]string, error)
}

type CheckpointSource interface {
	Checkpoint(ctx context.Context) schemacontextlib.VCSCheckpoint
}

// Config wires the candidate sources used by a Gatherer. A nil ReadFile
// reads candidates from disk.
type Config struct {
	HubFiles        []Candidate
	RequiredReading RequiredReadingSource
	Specs           SpecDiscoverer
	SpecLimit       int
	Checkpoint      CheckpointSource
	ReadFile        func(path string) ([]byte, error)
}

func DefaultHubFiles() []Candidate {
	return []Candidate{
		{Path: ".context/CLAUDE.md", Purpose: "Project context hub"},
		{Path: "CLAUDE.md", Purpose: "Root agent instructions"},
	}
}

// DefaultConfig uses the default hub files, workflow-declared required
// reading and "specs/**/*.md" discovery. Checkpoint is left unset.
func DefaultConfig() Config {
	return Config{
		HubFiles:        DefaultHubFiles(),
		RequiredReading: workflow.Reader{},
		Specs:           discover.NewGlobber(nil),
		SpecLimit:       DefaultSpecLimit,
	}
}

type Request struct {
	WorkflowDir string
	Root        string
	Budget      budget.Allocation
	Now         time.Time
}

type Result struct {
	Manifest schemacontextlib.Manifest
	Skipped  []SkippedCandidate
}

type Gatherer struct {
	config Config
}

func New(config Config) *Gatherer {
	return &Gatherer{config: config}
}

// Gather builds a fresh manifest. Candidates are offered in fixed priority:
// hub files, then required reading in declared order, then the first
// SpecLimit discovered specs. Each admitted file is charged against the core
// budget; a file that does not fit is deferred and charges nothing.
func (gatherer *Gatherer) Gather(ctx context.Context, request Request) (Result, error) {
	if !fsx.IsDir(request.WorkflowDir) {
		return Result{}, ctxerrors.Precondition(
			"workflow_not_found",
			"pass an existing workflow directory",
			"workflow directory not found: %s", request.WorkflowDir,
		)
	}
	root := request.Root
	if root == "" {
		root = "."
	}
	now := request.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	candidates, err := gatherer.candidates(request.WorkflowDir, root)
	if err != nil {
		return Result{}, err
	}

	allocator := budget.NewAllocator(request.Budget)
	coreRecords := []schemacontextlib.FileRecord{}
	deferred := []schemacontextlib.DeferredRecord{}
	skipped := []SkippedCandidate{}
	seen := map[string]struct{}{}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, ctxerrors.Wrap(err, ctxerrors.CategoryInternalFailure, "gather_cancelled", "", true)
		}
		recordPath := filepath.ToSlash(filepath.Clean(candidate.Path))
		resolved := resolve(root, candidate.Path)
		if _, ok := seen[resolved]; ok {
			skipped = append(skipped, SkippedCandidate{Path: recordPath, Reason: SkipDuplicate})
			continue
		}
		seen[resolved] = struct{}{}

		content, reason, detail := gatherer.readCandidate(resolved)
		if reason != "" {
			skipped = append(skipped, SkippedCandidate{Path: recordPath, Reason: reason, Detail: detail})
			continue
		}
		tokens := estimate.Estimate(content)
		if !allocator.TryAdmit(tokens) {
			deferred = append(deferred, schemacontextlib.DeferredRecord{
				Path:   recordPath,
				Tokens: tokens,
				Reason: fmt.Sprintf("Exceeds core budget (%d tokens)", allocator.Core()),
			})
			continue
		}
		coreRecords = append(coreRecords, schemacontextlib.FileRecord{
			Path:        recordPath,
			Fingerprint: estimate.Fingerprint(content),
			Tokens:      tokens,
			LoadedAt:    now,
			Purpose:     candidate.Purpose,
		})
	}

	checkpoint := schemacontextlib.VCSCheckpoint{Branch: "unknown", Commit: "unknown"}
	if gatherer.config.Checkpoint != nil {
		checkpoint = gatherer.config.Checkpoint.Checkpoint(ctx)
	}

	manifest := schemacontextlib.Manifest{
		WorkflowID:    workflow.ID(request.WorkflowDir),
		CreatedAt:     now,
		ContextMode:   schemacontextlib.ModeFresh,
		VCSCheckpoint: checkpoint,
		Budget:        request.Budget.Schema(),
		Sources:       map[string][]schemacontextlib.FileRecord{schemacontextlib.CategoryCore: coreRecords},
		Deferred:      deferred,
		Summary:       summarize(request.Budget.Total, coreRecords, deferred),
	}
	return Result{Manifest: manifest, Skipped: skipped}, nil
}

func (gatherer *Gatherer) candidates(workflowDir string, root string) ([]Candidate, error) {
	candidates := append([]Candidate(nil), gatherer.config.HubFiles...)

	if gatherer.config.RequiredReading != nil {
		entries, err := gatherer.config.RequiredReading.RequiredReading(workflowDir)
		if err != nil {
			return nil, ctxerrors.Wrap(
				fmt.Errorf("load required reading: %w", err),
				ctxerrors.CategoryInvalidInput, "required_reading_invalid",
				"fix the workflow config.yaml or WORKFLOW.md", false,
			)
		}
		for _, entry := range entries {
			purpose := entry.Purpose
			if purpose == "" {
				purpose = "Required reading: " + path.Base(filepath.ToSlash(entry.Path))
			}
			candidates = append(candidates, Candidate{Path: entry.Path, Purpose: purpose})
		}
	}

	if gatherer.config.Specs != nil && gatherer.config.SpecLimit > 0 {
		specs, err := gatherer.config.Specs.Discover(root)
		if err != nil {
			return nil, ctxerrors.Wrap(
				fmt.Errorf("discover specs: %w", err),
				ctxerrors.CategoryIOFailure, "spec_discovery_failed", "", false,
			)
		}
		if len(specs) > gatherer.config.SpecLimit {
			specs = specs[:gatherer.config.SpecLimit]
		}
		for _, spec := range specs {
			candidates = append(candidates, Candidate{Path: spec, Purpose: "Specification: " + path.Base(spec)})
		}
	}
	return candidates, nil
}

func resolve(root string, candidatePath string) string {
	native := filepath.FromSlash(candidatePath)
	if filepath.IsAbs(native) {
		return filepath.Clean(native)
	}
	joined := filepath.Join(root, native)
	if absolute, err := filepath.Abs(joined); err == nil {
		return absolute
	}
	return joined
}

func (gatherer *Gatherer) readCandidate(resolved string) ([]byte, SkipReason, string) {
	info, err := os.Stat(resolved)
	if err != nil {
		if fsx.IsNotExist(err) {
			return nil, SkipMissing, ""
		}
		return nil, SkipUnreadable, err.Error()
	}
	if info.IsDir() {
		return nil, SkipDirectory, ""
	}
	readFile := gatherer.config.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	content, err := readFile(resolved)
	if err != nil {
		return nil, SkipUnreadable, err.Error()
	}
	return content, "", ""
}

func summarize(total int, coreRecords []schemacontextlib.FileRecord, deferred []schemacontextlib.DeferredRecord) schemacontextlib.Summary {
	summary := schemacontextlib.Summary{
		CoreFiles:     len(coreRecords),
		DeferredFiles: len(deferred),
	}
	for _, record := range coreRecords {
		summary.CoreTokens += record.Tokens
	}
	for _, record := range deferred {
		summary.DeferredTokens += record.Tokens
	}
	summary.BudgetRemaining = total - summary.CoreTokens
	return summary
}
