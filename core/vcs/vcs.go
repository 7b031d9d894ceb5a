package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
)

const (
	Unknown        = "unknown"
	defaultTimeout = 5 * time.Second
)

type runResult struct {
	ExitCode int
	Stdout   string
}

// Runner executes argv in workDir. A non-zero exit is reported through
// runResult.ExitCode, not as an error.
type Runner func(ctx context.Context, workDir string, argv []string) (runResult, error)

func defaultRunner(ctx context.Context, workDir string, argv []string) (runResult, error) {
	if len(argv) == 0 {
		return runResult{}, fmt.Errorf("missing command")
	}
	command := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- fixed git argv.
	command.Dir = strings.TrimSpace(workDir)
	var stdoutBuf bytes.Buffer
	command.Stdout = &stdoutBuf
	err := command.Run()
	exitCode := 0
	if err != nil {
		exitErr := &exec.ExitError{}
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return runResult{}, err
		}
	}
	return runResult{ExitCode: exitCode, Stdout: stdoutBuf.String()}, nil
}

// Git snapshots branch, commit and cleanliness of the work tree at Dir.
type Git struct {
	Dir     string
	Timeout time.Duration
	Runner  Runner
}

// Checkpoint never fails: fields git cannot supply become "unknown" and a
// work tree whose status cannot be read is reported as not clean.
func (repository Git) Checkpoint(ctx context.Context) schemacontextlib.VCSCheckpoint {
	timeout := repository.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	branch, branchOK := repository.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	commit, commitOK := repository.run(ctx, "rev-parse", "--short", "HEAD")
	status, statusOK := repository.run(ctx, "status", "--porcelain")

	checkpoint := schemacontextlib.VCSCheckpoint{
		Branch:   Unknown,
		Commit:   Unknown,
		WasClean: statusOK && status == "",
	}
	if branchOK && branch != "" {
		checkpoint.Branch = branch
	}
	if commitOK && commit != "" {
		checkpoint.Commit = commit
	}
	return checkpoint
}

func (repository Git) run(ctx context.Context, args ...string) (string, bool) {
	runner := repository.Runner
	if runner == nil {
		runner = defaultRunner
	}
	result, err := runner(ctx, repository.Dir, append([]string{"git"}, args...))
	if err != nil || result.ExitCode != 0 {
		return "", false
	}
	return strings.TrimSpace(result.Stdout), true
}
