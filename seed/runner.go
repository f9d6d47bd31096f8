package seed

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one administrative cli script and returns its standard output.
// A non-nil error means the script did not exit with code 0.
type Runner interface {
	Run(ctx context.Context, script string, args ...string) (string, error)
}

type CommandError struct {
	Script string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("%s: %v", e.Script, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Script, e.Err, stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// PhpRunner runs scripts with the php interpreter from the Moodle root directory.
type PhpRunner struct {
	Php string
	Dir string
}

func (r PhpRunner) Run(ctx context.Context, script string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.Php, append([]string{script}, args...)...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{Script: script, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}
