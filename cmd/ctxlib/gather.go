package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidahmann/ctxlib/core/gather"
	"github.com/davidahmann/ctxlib/core/library"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
	"github.com/dustin/go-humanize"
)

const (
	reportRule  = "================================================================="
	sectionRule = "----------------------------------------"
)

type gatherOutput struct {
	OK           bool                       `json:"ok"`
	ManifestPath string                     `json:"manifest_path,omitempty"`
	Manifest     *schemacontextlib.Manifest `json:"manifest,omitempty"`
	Skipped      []gather.SkippedCandidate  `json:"skipped,omitempty"`
	errorFields
}

func runGather(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain(explainGather)
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"root":   true,
		"budget": true,
		"core":   true,
	})
	flagSet := flag.NewFlagSet("gather", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var root string
	var budgetValue string
	var core int
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&root, "root", ".", "project root that candidate paths resolve against")
	flagSet.StringVar(&budgetValue, "budget", "", "total token budget")
	flagSet.IntVar(&core, "core", 0, "core token budget, overrides the derived share")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeGatherOutput(jsonOutput, gatherOutput{errorFields: messageError(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printGatherUsage()
		return exitOK
	}
	remaining := flagSet.Args()
	if len(remaining) != 1 {
		return writeGatherOutput(jsonOutput, gatherOutput{errorFields: messageError("expected <workflow_dir>")}, exitInvalidInput)
	}
	coreSet := false
	flagSet.Visit(func(visited *flag.Flag) {
		if visited.Name == "core" {
			coreSet = true
		}
	})

	settings, err := library.LoadSettings(root, library.Overrides{Total: budgetValue, Core: core, CoreSet: coreSet}, writeWarning)
	if err != nil {
		return writeGatherOutput(jsonOutput, gatherOutput{errorFields: classifyError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	outcome, err := library.Gather(context.Background(), remaining[0], root, settings, time.Now())
	if err != nil {
		return writeGatherOutput(jsonOutput, gatherOutput{errorFields: classifyError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	for _, skipped := range outcome.Skipped {
		if skipped.Reason == gather.SkipUnreadable {
			writeWarning(fmt.Sprintf("skipped unreadable file %s: %s", skipped.Path, skipped.Detail))
		}
	}
	return writeGatherOutput(jsonOutput, gatherOutput{
		OK:           true,
		ManifestPath: outcome.ManifestPath,
		Manifest:     &outcome.Manifest,
		Skipped:      outcome.Skipped,
	}, exitOK)
}

func writeGatherOutput(jsonOutput bool, output gatherOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		return writeHumanError(output.errorFields, exitCode)
	}
	fmt.Printf("Generated: %s\n", output.ManifestPath)
	fmt.Print(renderContextSummary(*output.Manifest))
	return exitCode
}

func renderContextSummary(manifest schemacontextlib.Manifest) string {
	var builder strings.Builder
	summary := manifest.Summary

	fmt.Fprintf(&builder, "\n%s\nCONTEXT SUMMARY\n%s\n", reportRule, reportRule)
	fmt.Fprintf(&builder, "\nWorkflow: %s\n", manifest.WorkflowID)
	fmt.Fprintf(&builder, "Mode: %s\n", manifest.ContextMode)
	fmt.Fprintf(&builder, "VCS: %s @ %s (%s)\n", manifest.VCSCheckpoint.Branch, manifest.VCSCheckpoint.Commit, cleanliness(manifest.VCSCheckpoint.WasClean))

	fmt.Fprintf(&builder, "\nCORE CONTEXT (%d files, %s tokens)\n%s\n", summary.CoreFiles, approxTokens(summary.CoreTokens), sectionRule)
	for _, record := range manifest.Sources[schemacontextlib.CategoryCore] {
		fmt.Fprintf(&builder, "  %s: %s tokens\n", record.Path, approxTokens(record.Tokens))
		if record.Purpose != "" {
			fmt.Fprintf(&builder, "    └─ %s\n", record.Purpose)
		}
	}

	if len(manifest.Deferred) > 0 {
		fmt.Fprintf(&builder, "\nDEFERRED (%d files)\n%s\n", len(manifest.Deferred), sectionRule)
		for _, record := range manifest.Deferred {
			fmt.Fprintf(&builder, "  %s: %s tokens\n", record.Path, approxTokens(record.Tokens))
			fmt.Fprintf(&builder, "    └─ %s\n", record.Reason)
		}
	}

	fmt.Fprintf(&builder, "\nBUDGET\n%s\n", sectionRule)
	fmt.Fprintf(&builder, "  Core: %s / %s tokens\n", humanize.Comma(int64(summary.CoreTokens)), humanize.Comma(int64(manifest.Budget.Core)))
	fmt.Fprintf(&builder, "  Remaining: %s tokens\n", humanize.Comma(int64(summary.BudgetRemaining)))
	fmt.Fprintf(&builder, "\n%s\n", reportRule)
	return builder.String()
}

func approxTokens(tokens int) string {
	return "~" + humanize.Comma(int64(tokens))
}

func cleanliness(clean bool) string {
	if clean {
		return "clean"
	}
	return "dirty"
}

func printGatherUsage() {
	fmt.Println("Usage:")
	fmt.Println("  ctxlib gather <workflow_dir> [--root DIR] [--budget N] [--core N] [--json] [--explain]")
}
