package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davidahmann/ctxlib/core/advisor"
	"github.com/davidahmann/ctxlib/core/budget"
	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/gather"
	"github.com/davidahmann/ctxlib/core/manifest"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
	"github.com/davidahmann/ctxlib/internal/testutil"
)

var fixedNow = time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC)

func collectWarnings() (*[]string, func(string)) {
	warnings := []string{}
	return &warnings, func(message string) {
		warnings = append(warnings, message)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	root := t.TempDir()
	warnings, warn := collectWarnings()

	settings, err := LoadSettings(root, Overrides{}, warn)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.Allocation != budget.DefaultAllocation() {
		t.Fatalf("unexpected allocation: %#v", settings.Allocation)
	}
	if settings.Policy != advisor.DefaultPolicy() {
		t.Fatalf("unexpected policy: %#v", settings.Policy)
	}
	if len(settings.Gather.HubFiles) != len(gather.DefaultHubFiles()) {
		t.Fatalf("unexpected hub files: %#v", settings.Gather.HubFiles)
	}
	if settings.Gather.SpecLimit != gather.DefaultSpecLimit {
		t.Fatalf("unexpected spec limit: %d", settings.Gather.SpecLimit)
	}
	if settings.Gather.Checkpoint == nil || settings.Gather.RequiredReading == nil || settings.Gather.Specs == nil {
		t.Fatalf("expected every source to be wired: %#v", settings.Gather)
	}
	if len(*warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", *warnings)
	}
}

func TestLoadSettingsAppliesProjectConfig(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, ".ctxlib", "config.yaml"), []byte(`budget:
  total: 10000
  core: 3000
  split:
    core: 0.5
    wave_specific: 0.3
    on_demand: 0.2
sources:
  hub_files:
    - path: docs/HUB.md
      purpose: Team hub
  spec_limit: 1
advisor:
  resume_or_refresh_max_percent: 5
  refresh_max_percent: 50
`))
	_, warn := collectWarnings()

	settings, err := LoadSettings(root, Overrides{}, warn)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	want := budget.Allocation{Total: 10000, Core: 3000, WaveSpecific: 3000, OnDemand: 2000}
	if settings.Allocation != want {
		t.Fatalf("unexpected allocation: got %#v want %#v", settings.Allocation, want)
	}
	if len(settings.Gather.HubFiles) != 1 || settings.Gather.HubFiles[0] != (gather.Candidate{Path: "docs/HUB.md", Purpose: "Team hub"}) {
		t.Fatalf("unexpected hub files: %#v", settings.Gather.HubFiles)
	}
	if settings.Gather.SpecLimit != 1 {
		t.Fatalf("unexpected spec limit: %d", settings.Gather.SpecLimit)
	}
	if settings.Policy != (advisor.Policy{ResumeOrRefreshMaxPercent: 5, RefreshMaxPercent: 50}) {
		t.Fatalf("unexpected policy: %#v", settings.Policy)
	}
}

func TestLoadSettingsBudgetOverrides(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, ".ctxlib", "config.yaml"), []byte("budget:\n  core: 3000\n"))

	tests := []struct {
		name      string
		overrides Overrides
		want      budget.Allocation
		warnings  int
	}{
		{
			name:      "config_core_applies_to_default_total",
			overrides: Overrides{},
			want:      budget.Allocation{Total: 20000, Core: 3000, WaveSpecific: 8000, OnDemand: 4000},
		},
		{
			name:      "total_flag_rederives_core",
			overrides: Overrides{Total: "15000"},
			want:      budget.Allocation{Total: 15000, Core: 6000, WaveSpecific: 6000, OnDemand: 3000},
		},
		{
			name:      "core_flag_wins",
			overrides: Overrides{Total: "15000", Core: 500, CoreSet: true},
			want:      budget.Allocation{Total: 15000, Core: 500, WaveSpecific: 6000, OnDemand: 3000},
		},
		{
			name:      "invalid_total_warns_and_keeps_defaults",
			overrides: Overrides{Total: "lots"},
			want:      budget.Allocation{Total: 20000, Core: 3000, WaveSpecific: 8000, OnDemand: 4000},
			warnings:  1,
		},
		{
			name:      "negative_total_warns",
			overrides: Overrides{Total: "-5"},
			want:      budget.Allocation{Total: 20000, Core: 3000, WaveSpecific: 8000, OnDemand: 4000},
			warnings:  1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			warnings, warn := collectWarnings()
			settings, err := LoadSettings(root, test.overrides, warn)
			if err != nil {
				t.Fatalf("LoadSettings: %v", err)
			}
			if settings.Allocation != test.want {
				t.Fatalf("unexpected allocation: got %#v want %#v", settings.Allocation, test.want)
			}
			if len(*warnings) != test.warnings {
				t.Fatalf("unexpected warnings: %v", *warnings)
			}
			if test.warnings > 0 && !strings.Contains((*warnings)[0], "invalid --budget value") {
				t.Fatalf("unexpected warning text: %q", (*warnings)[0])
			}
		})
	}
}

func TestLoadSettingsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		overrides Overrides
	}{
		{name: "unparsable_config", config: "budget: [\n"},
		{name: "inverted_advisor", config: "advisor:\n  resume_or_refresh_max_percent: 40\n  refresh_max_percent: 20\n"},
		{name: "oversized_split", config: "budget:\n  split:\n    core: 0.9\n    wave_specific: 0.9\n    on_demand: 0\n"},
		{name: "negative_core_flag", overrides: Overrides{Core: -1, CoreSet: true}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			root := t.TempDir()
			if test.config != "" {
				testutil.WriteFile(t, filepath.Join(root, ".ctxlib", "config.yaml"), []byte(test.config))
			}
			_, warn := collectWarnings()
			_, err := LoadSettings(root, test.overrides, warn)
			if err == nil {
				t.Fatal("expected error")
			}
			if ctxerrors.CategoryOf(err) != ctxerrors.CategoryInvalidInput {
				t.Fatalf("unexpected category %q for %v", ctxerrors.CategoryOf(err), err)
			}
		})
	}
}

func TestLoadPolicyReadsOnlyAdvisorSection(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, ".ctxlib", "config.yaml"), []byte(`budget:
  total: -5
sources:
  spec_limit: -1
advisor:
  resume_or_refresh_max_percent: 5
  refresh_max_percent: 25
`))
	if _, err := LoadSettings(root, Overrides{}, nil); err == nil {
		t.Fatal("expected gather settings to reject the broken budget section")
	}
	policy, err := LoadPolicy(root)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if policy.ResumeOrRefreshMaxPercent != 5 || policy.RefreshMaxPercent != 25 {
		t.Fatalf("unexpected policy: %#v", policy)
	}

	defaults, err := LoadPolicy(t.TempDir())
	if err != nil || defaults != advisor.DefaultPolicy() {
		t.Fatalf("expected default policy without config, got %#v (%v)", defaults, err)
	}

	testutil.WriteFile(t, filepath.Join(root, ".ctxlib", "config.yaml"), []byte("advisor:\n  refresh_max_percent: 120\n"))
	if _, err := LoadPolicy(root); ctxerrors.CategoryOf(err) != ctxerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid_input for an out-of-range advisor, got %v", err)
	}
}

func gatherFixture(t *testing.T) (string, string, Settings) {
	t.Helper()
	root := t.TempDir()
	workflowDir := testutil.WorkflowDir(t, root, "WF-0042-resume-check")
	testutil.WriteTokenFile(t, root, "CLAUDE.md", 100)
	testutil.WriteTokenFile(t, root, "specs/api.md", 200)
	_, warn := collectWarnings()
	settings, err := LoadSettings(root, Overrides{}, warn)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	return root, workflowDir, settings
}

func TestGatherThenVerifyLifecycle(t *testing.T) {
	root, workflowDir, settings := gatherFixture(t)

	gathered, err := Gather(context.Background(), workflowDir, root, settings, fixedNow)
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if gathered.ManifestPath != manifest.Path(workflowDir) {
		t.Fatalf("unexpected manifest path: %s", gathered.ManifestPath)
	}
	if gathered.Manifest.WorkflowID != "WF-0042" {
		t.Fatalf("unexpected workflow id: %s", gathered.Manifest.WorkflowID)
	}
	core := gathered.Manifest.Sources[schemacontextlib.CategoryCore]
	if len(core) != 2 || core[0].Path != "CLAUDE.md" || core[1].Path != "specs/api.md" {
		t.Fatalf("unexpected core records: %#v", core)
	}
	if _, err := os.Stat(gathered.ManifestPath); err != nil {
		t.Fatalf("expected manifest on disk: %v", err)
	}

	clean, err := Verify(workflowDir, root, settings.Policy, false, fixedNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if clean.Recommendation != advisor.Resume || clean.ExitCode() != 0 {
		t.Fatalf("unexpected clean recommendation: %s", clean.Recommendation)
	}
	if clean.ManifestDigest == "" || clean.Updated {
		t.Fatalf("unexpected clean outcome: %#v", clean)
	}

	testutil.WriteFile(t, filepath.Join(root, "specs", "api.md"), []byte("rewritten"))
	drifted, err := Verify(workflowDir, root, settings.Policy, true, fixedNow.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Verify update: %v", err)
	}
	if drifted.Recommendation != advisor.Restart || drifted.ExitCode() != 2 {
		t.Fatalf("expected restart for 50%% drift, got %s", drifted.Recommendation)
	}
	if !drifted.Updated || drifted.ManifestDigest == clean.ManifestDigest {
		t.Fatalf("expected updated manifest with new digest: %#v", drifted)
	}
	stored, err := manifest.Load(gathered.ManifestPath)
	if err != nil {
		t.Fatalf("reload manifest: %v", err)
	}
	if stored.Integrity == nil || stored.Integrity.FilesChanged != 1 || stored.Integrity.FilesDeleted != 0 {
		t.Fatalf("unexpected persisted integrity: %#v", stored.Integrity)
	}
}

func TestGatherMissingWorkflowWritesNothing(t *testing.T) {
	root := t.TempDir()
	_, warn := collectWarnings()
	settings, err := LoadSettings(root, Overrides{}, warn)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	missing := filepath.Join(root, ".workflows", "active", "WF-0001-missing")
	_, err = Gather(context.Background(), missing, root, settings, fixedNow)
	if ctxerrors.CategoryOf(err) != ctxerrors.CategoryPrecondition {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if _, statErr := os.Stat(missing); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected nothing created, stat returned %v", statErr)
	}
}

func TestVerifyWithoutManifestFails(t *testing.T) {
	root := t.TempDir()
	workflowDir := testutil.WorkflowDir(t, root, "WF-0007-fresh")

	_, err := Verify(workflowDir, root, advisor.DefaultPolicy(), true, fixedNow)
	if !errors.Is(err, manifest.ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
	if ctxerrors.CategoryOf(err) != ctxerrors.CategoryPrecondition {
		t.Fatalf("unexpected category: %s", ctxerrors.CategoryOf(err))
	}
	entries, readErr := os.ReadDir(workflowDir)
	if readErr != nil {
		t.Fatalf("read workflow dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files written, found %d", len(entries))
	}

	_, err = Verify(filepath.Join(root, "absent"), root, advisor.DefaultPolicy(), false, fixedNow)
	if ctxerrors.CodeOf(err) != "workflow_not_found" {
		t.Fatalf("expected workflow_not_found, got %v", err)
	}
}

func TestEstimateTargets(t *testing.T) {
	root := t.TempDir()
	single := testutil.WriteTokenFile(t, root, "notes.md", 30)
	testutil.WriteTokenFile(t, root, "src/big.go", 900)
	testutil.WriteTokenFile(t, root, "node_modules/dep/index.js", 5000)
	testutil.WriteFile(t, filepath.Join(root, "image.png"), []byte("binary"))

	file, err := Estimate(single, 100)
	if err != nil {
		t.Fatalf("Estimate file: %v", err)
	}
	if file.Directory || len(file.Files) != 1 || file.Files[0].Tokens != 30 || !file.Analysis.Within {
		t.Fatalf("unexpected file outcome: %#v", file)
	}

	dir, err := Estimate(root, 500)
	if err != nil {
		t.Fatalf("Estimate dir: %v", err)
	}
	if !dir.Directory || len(dir.Files) != 2 {
		t.Fatalf("expected two selected files, got %#v", dir.Files)
	}
	if dir.Analysis.Within || dir.Analysis.Over != 430 {
		t.Fatalf("unexpected analysis: %#v", dir.Analysis)
	}
	if len(dir.Analysis.Largest) != 2 || !strings.HasSuffix(filepath.ToSlash(dir.Analysis.Largest[0].Path), "src/big.go") {
		t.Fatalf("unexpected largest files: %#v", dir.Analysis.Largest)
	}

	if _, err := Estimate(filepath.Join(root, "missing.md"), 100); ctxerrors.CodeOf(err) != "target_not_found" {
		t.Fatalf("expected target_not_found, got %v", err)
	}
	if _, err := Estimate(single, -1); ctxerrors.CategoryOf(err) != ctxerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid input for negative budget, got %v", err)
	}
}
