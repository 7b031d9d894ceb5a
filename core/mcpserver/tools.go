package mcpserver

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/davidahmann/ctxlib/core/advisor"
	"github.com/davidahmann/ctxlib/core/budget"
	"github.com/davidahmann/ctxlib/core/estimate"
	"github.com/davidahmann/ctxlib/core/gather"
	"github.com/davidahmann/ctxlib/core/integrity"
	"github.com/davidahmann/ctxlib/core/library"
	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
	"github.com/mark3labs/mcp-go/mcp"
)

// warningSink collects non-fatal warnings raised while a tool runs so they
// can be returned alongside the result.
type warningSink struct {
	messages []string
}

func (sink *warningSink) add(message string) {
	sink.messages = append(sink.messages, message)
}

// GatherTool handles the context_gather MCP tool.
type GatherTool struct {
	root string
	now  func() time.Time
}

func NewGatherTool(root string) *GatherTool {
	return &GatherTool{root: root, now: time.Now}
}

func (t *GatherTool) Definition() mcp.Tool {
	return mcp.NewTool("context_gather",
		mcp.WithDescription("Select hub files, required reading and specs for a workflow under the core token budget "+
			"and write CONTEXT-LIBRARY.yaml into the workflow directory. Returns the manifest."),
		mcp.WithString("workflow_dir",
			mcp.Required(),
			mcp.Description("Workflow directory, absolute or relative to the server root."),
		),
		mcp.WithString("root",
			mcp.Description("Project root candidate paths resolve against. Defaults to the server root."),
		),
		mcp.WithNumber("budget",
			mcp.Description("Total token budget. Defaults to the project config or 20000."),
		),
		mcp.WithNumber("core",
			mcp.Description("Core token budget, overriding the share derived from the total."),
		),
	)
}

type gatherResponse struct {
	ManifestPath string                    `json:"manifest_path"`
	Manifest     schemacontextlib.Manifest `json:"manifest"`
	Skipped      []gather.SkippedCandidate `json:"skipped"`
	Warnings     []string                  `json:"warnings,omitempty"`
}

func (t *GatherTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowDir := strings.TrimSpace(req.GetString("workflow_dir", ""))
	if workflowDir == "" {
		return mcp.NewToolResultError("workflow_dir is required"), nil
	}
	root := resolvePath(t.root, strings.TrimSpace(req.GetString("root", "")))
	if root == "" {
		root = t.root
	}

	overrides := library.Overrides{}
	total, ok, err := intArg(req, "budget")
	if err != nil {
		return errorResult(err)
	}
	if ok {
		overrides.Total = strconv.Itoa(total)
	}
	core, ok, err := intArg(req, "core")
	if err != nil {
		return errorResult(err)
	}
	if ok {
		overrides.Core = core
		overrides.CoreSet = true
	}

	warnings := &warningSink{}
	settings, err := library.LoadSettings(root, overrides, warnings.add)
	if err != nil {
		return errorResult(err)
	}
	outcome, err := library.Gather(ctx, resolvePath(t.root, workflowDir), root, settings, t.now())
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(gatherResponse{
		ManifestPath: outcome.ManifestPath,
		Manifest:     outcome.Manifest,
		Skipped:      outcome.Skipped,
		Warnings:     warnings.messages,
	})
}

// VerifyTool handles the context_verify MCP tool.
type VerifyTool struct {
	root string
	now  func() time.Time
}

func NewVerifyTool(root string) *VerifyTool {
	return &VerifyTool{root: root, now: time.Now}
}

func (t *VerifyTool) Definition() mcp.Tool {
	return mcp.NewTool("context_verify",
		mcp.WithDescription("Re-fingerprint every file recorded in a workflow's CONTEXT-LIBRARY.yaml and recommend "+
			"RESUME, RESUME_OR_REFRESH, REFRESH or RESTART."),
		mcp.WithString("workflow_dir",
			mcp.Required(),
			mcp.Description("Workflow directory holding CONTEXT-LIBRARY.yaml."),
		),
		mcp.WithString("root",
			mcp.Description("Project root recorded paths resolve against. Defaults to the server root."),
		),
		mcp.WithBoolean("update",
			mcp.Description("Write the integrity block back into the manifest (default: false)."),
		),
	)
}

type verifyResponse struct {
	WorkflowID     string                 `json:"workflow_id"`
	Recommendation advisor.Recommendation `json:"recommendation"`
	Explanation    string                 `json:"explanation"`
	ExitCode       int                    `json:"exit_code"`
	ManifestDigest string                 `json:"manifest_digest"`
	Updated        bool                   `json:"updated"`
	Results        integrity.Result       `json:"results"`
}

func (t *VerifyTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowDir := strings.TrimSpace(req.GetString("workflow_dir", ""))
	if workflowDir == "" {
		return mcp.NewToolResultError("workflow_dir is required"), nil
	}
	root := resolvePath(t.root, strings.TrimSpace(req.GetString("root", "")))
	if root == "" {
		root = t.root
	}

	policy, err := library.LoadPolicy(root)
	if err != nil {
		return errorResult(err)
	}
	outcome, err := library.Verify(resolvePath(t.root, workflowDir), root, policy, boolArg(req, "update", false), t.now())
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(verifyResponse{
		WorkflowID:     outcome.Manifest.WorkflowID,
		Recommendation: outcome.Recommendation,
		Explanation:    outcome.Explanation,
		ExitCode:       outcome.ExitCode(),
		ManifestDigest: outcome.ManifestDigest,
		Updated:        outcome.Updated,
		Results:        outcome.Result,
	})
}

// EstimateTool handles the context_estimate MCP tool.
type EstimateTool struct {
	root string
}

func NewEstimateTool(root string) *EstimateTool {
	return &EstimateTool{root: root}
}

func (t *EstimateTool) Definition() mcp.Tool {
	return mcp.NewTool("context_estimate",
		mcp.WithDescription("Estimate tokens, lines and fingerprints for a file or directory and compare the total against a budget."),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("File or directory, absolute or relative to the server root."),
		),
		mcp.WithNumber("budget",
			mcp.Description("Token budget to compare against (default: 20000)."),
		),
	)
}

type estimateResponse struct {
	Target    string                  `json:"target"`
	Directory bool                    `json:"directory"`
	Files     []estimate.FileEstimate `json:"files"`
	Analysis  estimate.BudgetAnalysis `json:"analysis"`
}

func (t *EstimateTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := strings.TrimSpace(req.GetString("target", ""))
	if target == "" {
		return mcp.NewToolResultError("target is required"), nil
	}
	tokenBudget, ok, err := intArg(req, "budget")
	if err != nil {
		return errorResult(err)
	}
	if !ok {
		tokenBudget = budget.DefaultTotal
	}
	outcome, err := library.Estimate(resolvePath(t.root, target), tokenBudget)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(estimateResponse{
		Target:    outcome.Target,
		Directory: outcome.Directory,
		Files:     outcome.Files,
		Analysis:  outcome.Analysis,
	})
}
