package main

import (
	"fmt"
	"strings"
)

const (
	explainRoot     = "ctxlib manages a workflow's context budget: it gathers reference files under a token budget into CONTEXT-LIBRARY.yaml and later verifies them for drift before a resume."
	explainGather   = "Select hub files, required reading and specs for a workflow under the core token budget and write CONTEXT-LIBRARY.yaml into the workflow directory."
	explainVerify   = "Re-fingerprint every file recorded in CONTEXT-LIBRARY.yaml and recommend RESUME, RESUME_OR_REFRESH, REFRESH or RESTART. Exit 0, 1 or 2 follows the recommendation."
	explainEstimate = "Estimate tokens, lines and fingerprints for a file or directory and compare the total against a budget."
	explainMCP      = "Serve the gather, verify and estimate operations as MCP tools over stdio."
	explainVersion  = "Print the CLI version."
)

func hasExplainFlag(arguments []string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == "--explain" {
			return true
		}
	}
	return false
}

func writeExplain(text string) int {
	fmt.Println(text)
	return exitOK
}
