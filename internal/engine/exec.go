package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"georeg/internal/coreg"
)

// DefaultCommand is the coregistration command used when no engine is
// configured.
const DefaultCommand = "arosics-coreg"

// ExecEngine shells out to an external coregistration command. The contract
// is plain JSON: engine settings arrive on stdin, one result object comes
// back on stdout, and the aligned raster is written to the requested output
// path.
type ExecEngine struct {
	name    string
	command string
	args    []string
}

// NewExecEngine wraps the given command. Extra args are passed before the
// per-request flags on every invocation.
func NewExecEngine(name, command string, args ...string) *ExecEngine {
	if command == "" {
		command = DefaultCommand
	}
	if name == "" {
		name = command
	}
	return &ExecEngine{name: name, command: command, args: args}
}

func (e *ExecEngine) Name() string { return e.name }

// IsAvailable reports whether the command resolves on PATH.
func (e *ExecEngine) IsAvailable() bool {
	_, err := exec.LookPath(e.command)
	return err == nil
}

// Coregister runs the command for one target. A result the command manages
// to write wins over its exit status, since engines report per-file failures
// as success=false results while still exiting non-zero in some versions.
func (e *ExecEngine) Coregister(ctx context.Context, req Request) (coreg.EngineResult, error) {
	if req.ReferencePath == "" || req.TargetPath == "" || req.OutputPath == "" {
		return coreg.EngineResult{}, fmt.Errorf("engine request needs reference, target and output paths")
	}
	settings, err := json.Marshal(req.Settings)
	if err != nil {
		return coreg.EngineResult{}, fmt.Errorf("failed to encode engine settings: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.command, e.buildArgs(req)...)
	cmd.Stdin = bytes.NewReader(settings)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	runErr := cmd.Run()

	var res coreg.EngineResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		if runErr != nil {
			return coreg.EngineResult{}, fmt.Errorf("%s failed: %v: %s",
				e.name, runErr, strings.TrimSpace(errBuf.String()))
		}
		return coreg.EngineResult{}, fmt.Errorf("%s wrote an unreadable result: %w", e.name, err)
	}
	return res, nil
}

func (e *ExecEngine) buildArgs(req Request) []string {
	args := append([]string{}, e.args...)
	return append(args,
		"--reference", req.ReferencePath,
		"--target", req.TargetPath,
		"--output", req.OutputPath,
		"--settings", "-",
	)
}
