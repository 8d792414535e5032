// Package command runs external programs (cluster queries, toolbox
// templating) and captures their output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner is implemented by Exec and by test fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// Exec runs commands on the host.
type Exec struct {
	Dir string
	// Env is appended to the parent environment when non-empty.
	Env []string
}

// Run executes name with args. A non-zero exit status returns both the
// captured Result and an error mentioning stderr.
func (e Exec) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("%s: %s: %w", name, strings.TrimSpace(res.Stderr), err)
		}
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// Split turns a command line from a flag into argv. Quoting is not
// supported; wrap the command in a script when it needs it.
func Split(line string) []string {
	return strings.Fields(line)
}
