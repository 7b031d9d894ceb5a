package main

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/davidahmann/ctxlib/core/budget"
	"github.com/davidahmann/ctxlib/core/estimate"
	"github.com/davidahmann/ctxlib/core/library"
	"github.com/dustin/go-humanize"
)

type estimateOutput struct {
	OK        bool                     `json:"ok"`
	Target    string                   `json:"target,omitempty"`
	Directory bool                     `json:"directory,omitempty"`
	Files     []estimate.FileEstimate  `json:"files,omitempty"`
	Analysis  *estimate.BudgetAnalysis `json:"analysis,omitempty"`
	errorFields
}

func runEstimate(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain(explainEstimate)
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"budget": true,
	})
	flagSet := flag.NewFlagSet("estimate", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var tokenBudget int
	var detailed bool
	var jsonOutput bool
	var helpFlag bool

	flagSet.IntVar(&tokenBudget, "budget", budget.DefaultTotal, "token budget to compare the total against")
	flagSet.BoolVar(&detailed, "detailed", false, "list every file and the budget analysis")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeEstimateOutput(jsonOutput, detailed, estimateOutput{errorFields: messageError(err.Error())}, exitInvalidInput)
	}
	if helpFlag {
		printEstimateUsage()
		return exitOK
	}
	remaining := flagSet.Args()
	if len(remaining) != 1 {
		return writeEstimateOutput(jsonOutput, detailed, estimateOutput{errorFields: messageError("expected <file_or_dir>")}, exitInvalidInput)
	}

	outcome, err := library.Estimate(remaining[0], tokenBudget)
	if err != nil {
		return writeEstimateOutput(jsonOutput, detailed, estimateOutput{errorFields: classifyError(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeEstimateOutput(jsonOutput, detailed, estimateOutput{
		OK:        true,
		Target:    outcome.Target,
		Directory: outcome.Directory,
		Files:     outcome.Files,
		Analysis:  &outcome.Analysis,
	}, exitOK)
}

func writeEstimateOutput(jsonOutput bool, detailed bool, output estimateOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		return writeHumanError(output.errorFields, exitCode)
	}
	if !output.Directory {
		file := output.Files[0]
		fmt.Printf("%s: %s tokens\n", file.Path, approxTokens(file.Tokens))
		fmt.Printf("  Fingerprint: %s\n", file.Fingerprint)
		fmt.Printf("  Lines: %d\n", file.Lines)
		return exitCode
	}
	if len(output.Files) == 0 {
		fmt.Printf("No matching files found in %s\n", output.Target)
		return exitCode
	}
	if !detailed {
		fmt.Printf("Total: %s tokens (%d files)\n", approxTokens(output.Analysis.Tokens), output.Analysis.Files)
		return exitCode
	}
	fmt.Print(renderDetailedEstimate(output.Files, *output.Analysis))
	return exitCode
}

func renderDetailedEstimate(files []estimate.FileEstimate, analysis estimate.BudgetAnalysis) string {
	var builder strings.Builder
	sorted := append([]estimate.FileEstimate(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tokens > sorted[j].Tokens
	})
	for _, file := range sorted {
		if file.Error != "" {
			fmt.Fprintf(&builder, "  [ERROR] %s: %s\n", file.Path, file.Error)
			continue
		}
		fmt.Fprintf(&builder, "  %s: %s\n", file.Path, approxTokens(file.Tokens))
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintf(&builder, "\n%s\nCONTEXT BUDGET ANALYSIS\n%s\n", rule, rule)
	fmt.Fprintf(&builder, "Files analyzed: %d\n", analysis.Files)
	fmt.Fprintf(&builder, "Total tokens: %s\n", approxTokens(analysis.Tokens))
	fmt.Fprintf(&builder, "Budget: %s\n", approxTokens(analysis.Budget))
	if analysis.Within {
		fmt.Fprintf(&builder, "Status: WITHIN BUDGET (%s remaining)\n", approxTokens(analysis.Remaining))
		return builder.String()
	}
	fmt.Fprintf(&builder, "Status: OVER BUDGET by %s tokens\n", approxTokens(analysis.Over))
	fmt.Fprintf(&builder, "\nLargest files (consider deferring):\n")
	for _, file := range analysis.Largest {
		fmt.Fprintf(&builder, "  - %s: %s\n", file.Path, approxTokens(file.Tokens))
	}
	return builder.String()
}

func printEstimateUsage() {
	fmt.Println("Usage:")
	fmt.Printf("  ctxlib estimate <file_or_dir> [--detailed] [--budget N] [--json] [--explain]\n")
	fmt.Printf("  default budget: %s tokens\n", humanize.Comma(budget.DefaultTotal))
}
