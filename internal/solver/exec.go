package solver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Command is one external solver utility invocation.
type Command struct {
	// Dir is the case directory the command runs in.
	Dir  string
	Name string
	Args []string
	// Log is the file name, relative to Dir, that receives stdout and stderr.
	Log string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Commander runs external commands. Implementations block until the command exits.
type Commander interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
}

// ExecCommander runs commands as child processes.
type ExecCommander struct{}

func (ExecCommander) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	if c.Log != "" {
		f, err := os.OpenFile(filepath.Join(c.Dir, c.Log), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log %s: %w", c.Log, err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: c.String(), Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("failed to execute %s: %w", c.Name, err)
}
