// Package mcpserver exposes the gather, verify and estimate operations as
// MCP tools so an agent runner can manage its own context budget.
package mcpserver

import (
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
)

const Name = "ctxlib"

// New registers every tool against root. Relative paths in tool arguments
// resolve against root.
func New(root string, version string) *server.MCPServer {
	if root == "" {
		root = "."
	}
	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	gatherTool := NewGatherTool(root)
	s.AddTool(gatherTool.Definition(), gatherTool.Handle)

	verifyTool := NewVerifyTool(root)
	s.AddTool(verifyTool.Definition(), verifyTool.Handle)

	estimateTool := NewEstimateTool(root)
	s.AddTool(estimateTool.Definition(), estimateTool.Handle)

	return s
}

// ServeStdio blocks serving the tools over stdin/stdout.
func ServeStdio(root string, version string) error {
	return server.ServeStdio(New(root, version))
}

const instructions = "Call context_gather at the start of a workflow to select reference files under the token budget. " +
	"Before resuming an interrupted workflow call context_verify and follow its recommendation: " +
	"RESUME continues, RESUME_OR_REFRESH and REFRESH re-read changed files, RESTART gathers again from scratch."

func resolvePath(root string, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
