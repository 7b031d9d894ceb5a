package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidahmann/ctxlib/core/advisor"
	"github.com/davidahmann/ctxlib/core/integrity"
	"github.com/davidahmann/ctxlib/core/library"
)

type verifyOutput struct {
	OK             bool                   `json:"ok"`
	WorkflowID     string                 `json:"workflow_id,omitempty"`
	ManifestPath   string                 `json:"manifest_path,omitempty"`
	ManifestDigest string                 `json:"manifest_digest,omitempty"`
	GatheredAt     string                 `json:"gathered_at,omitempty"`
	Recommendation advisor.Recommendation `json:"recommendation,omitempty"`
	Explanation    string                 `json:"explanation,omitempty"`
	Updated        bool                   `json:"updated,omitempty"`
	Results        *integrity.Result      `json:"results,omitempty"`
	errorFields
}

func runVerify(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain(explainVerify)
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"root": true,
	})
	flagSet := flag.NewFlagSet("verify", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var root string
	var update bool
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&root, "root", ".", "project root that recorded paths resolve against")
	flagSet.BoolVar(&update, "update", false, "write the integrity block back into the manifest")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{errorFields: messageError(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printVerifyUsage()
		return exitOK
	}
	remaining := flagSet.Args()
	if len(remaining) != 1 {
		return writeVerifyOutput(jsonOutput, verifyOutput{errorFields: messageError("expected <workflow_dir>")}, exitInvalidInput)
	}

	policy, err := library.LoadPolicy(root)
	if err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{errorFields: classifyError(err)}, exitCodeForError(err, exitInvalidInput))
	}
	outcome, err := library.Verify(remaining[0], root, policy, update, time.Now())
	if err != nil {
		return writeVerifyOutput(jsonOutput, verifyOutput{errorFields: classifyError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeVerifyOutput(jsonOutput, verifyOutput{
		OK:             true,
		WorkflowID:     outcome.Manifest.WorkflowID,
		ManifestPath:   outcome.ManifestPath,
		ManifestDigest: outcome.ManifestDigest,
		GatheredAt:     outcome.Manifest.CreatedAt.UTC().Format(time.RFC3339),
		Recommendation: outcome.Recommendation,
		Explanation:    outcome.Explanation,
		Updated:        outcome.Updated,
		Results:        &outcome.Result,
	}, outcome.ExitCode())
}

func writeVerifyOutput(jsonOutput bool, output verifyOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		return writeHumanError(output.errorFields, exitCode)
	}
	fmt.Print(renderVerificationReport(output))
	if output.Updated {
		fmt.Printf("Updated: %s\n", output.ManifestPath)
	}
	return exitCode
}

func renderVerificationReport(output verifyOutput) string {
	var builder strings.Builder
	result := output.Results

	fmt.Fprintf(&builder, "\n%s\nCONTEXT INTEGRITY CHECK: %s\n%s\n", reportRule, output.WorkflowID, reportRule)
	fmt.Fprintf(&builder, "\nContext gathered: %s\n", output.GatheredAt)
	fmt.Fprintf(&builder, "Verified at: %s\n", result.VerifiedAt.Format(time.RFC3339))

	fmt.Fprintf(&builder, "\nFILES CHECKED: %d\n", result.TotalFiles)
	fmt.Fprintf(&builder, "   Unchanged: %d\n", len(result.Unchanged))
	fmt.Fprintf(&builder, "   Changed: %d\n", len(result.Changed))
	fmt.Fprintf(&builder, "   Deleted: %d\n", len(result.Deleted))
	fmt.Fprintf(&builder, "   Errors: %d\n", len(result.Errors))

	if len(result.Changed) > 0 {
		fmt.Fprintf(&builder, "\nCHANGED FILES (%d)\n%s\n", len(result.Changed), sectionRule)
		for _, status := range result.Changed {
			fmt.Fprintf(&builder, "  %s\n", status.Path)
			fmt.Fprintf(&builder, "    was: %s\n", status.StoredFingerprint)
			fmt.Fprintf(&builder, "    now: %s\n", status.CurrentFingerprint)
		}
	}
	if len(result.Deleted) > 0 {
		fmt.Fprintf(&builder, "\nDELETED FILES (%d)\n%s\n", len(result.Deleted), sectionRule)
		for _, status := range result.Deleted {
			fmt.Fprintf(&builder, "  %s (was: %s)\n", status.Path, status.StoredFingerprint)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(&builder, "\nUNREADABLE FILES (%d)\n%s\n", len(result.Errors), sectionRule)
		for _, fileError := range result.Errors {
			fmt.Fprintf(&builder, "  %s: %s\n", fileError.Path, fileError.Error)
		}
	}

	fmt.Fprintf(&builder, "\n%s\nRECOMMENDATION: %s\n  %s\n%s\n", reportRule, output.Recommendation, output.Explanation, reportRule)
	return builder.String()
}

func printVerifyUsage() {
	fmt.Println("Usage:")
	fmt.Println("  ctxlib verify <workflow_dir> [--root DIR] [--update] [--json] [--explain]")
}
