package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/me/agentq/pkg/model"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, env []string, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// osCommandRunner is the real implementation using os/exec.
type osCommandRunner struct{}

func (osCommandRunner) Run(ctx context.Context, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return stdout, stderr, 0, nil
	case errors.As(runErr, &exitErr):
		return stdout, stderr, exitErr.ExitCode(), nil
	default:
		return stdout, stderr, -1, runErr
	}
}

// CommandProcessor processes an upload by running an external command with
// the upload id appended to its arguments. The child's stdout is captured,
// never forwarded: the agent's own stdout belongs to the scheduler.
type CommandProcessor struct {
	command []string
	env     []string
	runner  CommandRunner
	logger  *slog.Logger
}

var _ Processor = (*CommandProcessor)(nil)

// NewCommandProcessor creates a CommandProcessor for command. The user and
// job from opts are exported as AGENTQ_USER_ID and AGENTQ_JOB_ID.
func NewCommandProcessor(command []string, opts Options, logger *slog.Logger) (*CommandProcessor, error) {
	return newCommandProcessorWithRunner(command, opts, osCommandRunner{}, logger)
}

func newCommandProcessorWithRunner(command []string, opts Options, runner CommandRunner, logger *slog.Logger) (*CommandProcessor, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("command processor: empty command")
	}
	return &CommandProcessor{
		command: command,
		env: []string{
			"AGENTQ_USER_ID=" + strconv.FormatInt(opts.UserID, 10),
			"AGENTQ_JOB_ID=" + strconv.FormatInt(opts.JobID, 10),
		},
		runner: runner,
		logger: logger.With("component", "exec"),
	}, nil
}

func (p *CommandProcessor) ProcessUpload(ctx context.Context, uploadID int64) error {
	id := strconv.FormatInt(uploadID, 10)
	args := append(append([]string{}, p.command[1:]...), id)
	env := append(append([]string{}, p.env...), "AGENTQ_UPLOAD_ID="+id)

	p.logger.Debug("exec", "command", p.command[0], "args", args)
	stdout, stderr, code, err := p.runner.Run(ctx, env, p.command[0], args...)
	if err != nil {
		return fmt.Errorf("%w: run %s: %v", model.ErrProcessingFailure, p.command[0], err)
	}
	if stdout != "" {
		p.logger.Debug("command output", "upload_id", uploadID, "stdout", stdout)
	}
	if code != 0 {
		msg := fmt.Sprintf("%s exited with status %d", p.command[0], code)
		if last := lastLine(stderr); last != "" {
			msg += ": " + last
		}
		return fmt.Errorf("%w: %s", model.ErrProcessingFailure, msg)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n\t ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
