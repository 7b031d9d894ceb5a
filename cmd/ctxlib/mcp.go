package main

import (
	"flag"
	"fmt"
	"io"

	ctxerrors "github.com/davidahmann/ctxlib/core/errors"
	"github.com/davidahmann/ctxlib/core/mcpserver"
)

var serveMCPStdio = mcpserver.ServeStdio

func runMCP(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain(explainMCP)
	}
	if len(arguments) == 0 || arguments[0] != "serve" {
		printMCPUsage()
		return exitInvalidInput
	}
	return runMCPServe(arguments[1:])
}

func runMCPServe(arguments []string) int {
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"root": true,
	})
	flagSet := flag.NewFlagSet("mcp serve", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var root string
	var helpFlag bool

	flagSet.StringVar(&root, "root", ".", "project root tool paths resolve against")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeHumanError(messageError(err.Error()), exitInvalidInput)
	}
	if helpFlag {
		printMCPUsage()
		return exitOK
	}
	if len(flagSet.Args()) != 0 {
		return writeHumanError(messageError("unexpected arguments: mcp serve takes no positionals"), exitInvalidInput)
	}
	// Stdout carries the protocol, so failures go to stderr only.
	if err := serveMCPStdio(root, version); err != nil {
		wrapped := ctxerrors.Wrap(err, ctxerrors.CategoryIOFailure, "mcp_serve_failed", "", false)
		return writeHumanError(classifyError(wrapped), exitCodeForError(wrapped, exitInternalFailure))
	}
	return exitOK
}

func printMCPUsage() {
	fmt.Println("Usage:")
	fmt.Println("  ctxlib mcp serve [--root DIR] [--explain]")
}
