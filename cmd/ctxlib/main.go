package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/davidahmann/ctxlib/core/oplog"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	startedAt := time.Now()
	correlationID := newCorrelationID(arguments)
	setCurrentCorrelationID(correlationID)
	command := normalizeCommand(arguments)
	writeOperationalEventStart(command, correlationID, startedAt.UTC())
	exitCode := runDispatch(arguments)
	writeOperationalEventEnd(command, correlationID, exitCode, time.Since(startedAt), time.Now().UTC())
	setCurrentCorrelationID("")
	return exitCode
}

func runDispatch(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitInvalidInput
	}
	if arguments[1] == "--explain" {
		return writeExplain(explainRoot)
	}

	switch arguments[1] {
	case "gather":
		return runGather(arguments[2:])
	case "verify":
		return runVerify(arguments[2:])
	case "estimate":
		return runEstimate(arguments[2:])
	case "mcp":
		return runMCP(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain(explainVersion)
		}
		fmt.Println("ctxlib", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func normalizeCommand(arguments []string) string {
	if len(arguments) < 2 {
		return "usage"
	}
	command := strings.TrimSpace(arguments[1])
	switch command {
	case "":
		return "unknown"
	case "--version", "-v", "version":
		return "version"
	case "--explain":
		return "explain"
	case "mcp":
		if len(arguments) > 2 {
			if subcommand := strings.TrimSpace(arguments[2]); subcommand != "" && !strings.HasPrefix(subcommand, "-") {
				return command + " " + subcommand
			}
		}
	}
	return command
}

func writeOperationalEventStart(command string, correlationID string, now time.Time) {
	path := strings.TrimSpace(os.Getenv(oplog.EnvPath))
	if path == "" {
		return
	}
	reportOperationalWrite(oplog.Append(path, oplog.NewStartEvent(command, correlationID, version, now)))
}

// writeOperationalEventEnd treats the verify recommendation codes as
// successful outcomes; only exits above RESTART carry an error category.
func writeOperationalEventEnd(command string, correlationID string, exitCode int, elapsed time.Duration, now time.Time) {
	path := strings.TrimSpace(os.Getenv(oplog.EnvPath))
	if path == "" {
		return
	}
	category := "none"
	retryable := false
	if exitCode > exitRestart {
		resolved := defaultErrorCategory(exitCode)
		category = string(resolved)
		retryable = defaultRetryable(resolved)
	}
	event := oplog.NewEndEvent(command, correlationID, version, exitCode, category, retryable, elapsed, now)
	reportOperationalWrite(oplog.Append(path, event))
}

func reportOperationalWrite(err error) {
	if err == nil {
		return
	}
	writeWarning(fmt.Sprintf("operational log write failed: %v", err))
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  ctxlib gather <workflow_dir> [--root DIR] [--budget N] [--core N] [--json] [--explain]")
	fmt.Println("  ctxlib verify <workflow_dir> [--root DIR] [--update] [--json] [--explain]")
	fmt.Println("  ctxlib estimate <file_or_dir> [--detailed] [--budget N] [--json] [--explain]")
	fmt.Println("  ctxlib mcp serve [--root DIR] [--explain]")
	fmt.Println("  ctxlib version")
	fmt.Println("  ctxlib --explain")
}
