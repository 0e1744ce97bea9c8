// Package shell provides a local command and file tool surface rooted at a
// working directory.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/AgentForge/internal/port/toolexec"
)

const (
	ToolRunCommand = "run_command"
	ToolReadFile   = "read_file"
	ToolWriteFile  = "write_file"

	maxOutputBytes = 64 << 10
	waitDelay      = time.Second // bound on waiting for orphaned children after a kill
)

// ErrOutsideWorkdir is returned for paths that escape the working directory.
var ErrOutsideWorkdir = errors.New("path escapes working directory")

// Executor runs shell commands and file operations inside workdir. At most
// limit processes run at once across all tasks.
type Executor struct {
	workdir string
	sem     *semaphore.Weighted
}

// New creates an Executor rooted at workdir.
func New(workdir string, limit int) (*Executor, error) {
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("shell workdir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("shell workdir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("shell workdir %s is not a directory", abs)
	}
	if limit < 1 {
		limit = 1
	}
	return &Executor{workdir: abs, sem: semaphore.NewWeighted(int64(limit))}, nil
}

// Tools returns the schemas of the tools this executor serves.
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolRunCommand,
			mcp.WithDescription("Run a shell command in the workspace and return stdout, stderr and exit code"),
			mcp.WithString("command", mcp.Required(), mcp.Description("Command line passed to sh -c")),
		),
		mcp.NewTool(ToolReadFile,
			mcp.WithDescription("Read a file relative to the workspace"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Relative file path")),
		),
		mcp.NewTool(ToolWriteFile,
			mcp.WithDescription("Write a file relative to the workspace, creating parent directories"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Relative file path")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
		),
	}
}

// ToolNames returns the names of Tools.
func ToolNames() []string {
	return []string{ToolRunCommand, ToolReadFile, ToolWriteFile}
}

// Execute implements toolexec.Executor.
func (e *Executor) Execute(ctx context.Context, tool string, args map[string]any) (toolexec.Output, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return toolexec.Output{}, err
	}
	defer e.sem.Release(1)

	switch tool {
	case ToolRunCommand:
		return e.runCommand(ctx, stringArg(args, "command"))
	case ToolReadFile:
		return e.readFile(stringArg(args, "path"))
	case ToolWriteFile:
		return e.writeFile(stringArg(args, "path"), stringArg(args, "content"))
	default:
		return toolexec.Output{}, fmt.Errorf("shell: unknown tool %q", tool)
	}
}

func (e *Executor) runCommand(ctx context.Context, command string) (toolexec.Output, error) {
	if command == "" {
		return toolexec.Output{}, errors.New("command is empty")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // G204: running agent commands is the purpose of this tool
	cmd.Dir = e.workdir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return toolexec.Output{}, fmt.Errorf("run command: %w", err)
		}
		code = exitErr.ExitCode()
	}
	return toolexec.Output{
		Output:   truncate(stdout.String()),
		ExitCode: &code,
		Stderr:   truncate(stderr.String()),
	}, nil
}

func (e *Executor) readFile(rel string) (toolexec.Output, error) {
	path, err := e.resolve(rel)
	if err != nil {
		return toolexec.Output{}, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is confined to workdir
	if err != nil {
		return failure(err), nil
	}
	return toolexec.Output{Output: truncate(string(data))}, nil
}

func (e *Executor) writeFile(rel, content string) (toolexec.Output, error) {
	path, err := e.resolve(rel)
	if err != nil {
		return toolexec.Output{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return failure(err), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return failure(err), nil
	}
	return toolexec.Output{Output: map[string]any{"path": rel, "bytes": len(content)}}, nil
}

// resolve maps a relative path into workdir, rejecting escapes.
func (e *Executor) resolve(rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideWorkdir)
	}
	path := filepath.Join(e.workdir, rel)
	r, err := filepath.Rel(e.workdir, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideWorkdir)
	}
	return path, nil
}

// failure reports an operation error as a non-zero exit rather than a
// surface failure.
func failure(err error) toolexec.Output {
	code := 1
	return toolexec.Output{Output: "", ExitCode: &code, Stderr: err.Error()}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n...[truncated]"
}
