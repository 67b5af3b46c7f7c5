package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	outputTruncatedMarker = "\n\n... [truncated]"

	// captureLimit bounds how much of each stream is kept in memory while a
	// command runs. It is far above the model-facing output limit.
	captureLimit = 1 << 20

	waitDelay = 2 * time.Second
)

func (e *Executor) runBash(ctx context.Context, command string) Result {
	if res, ok := e.checkCommand(ctx, command); !ok {
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, e.opts.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.opts.Shell, "-c", command)
	if root := WorkspaceFromContext(ctx); root != "" {
		cmd.Dir = root
	}
	configureProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	stdout := &cappedBuffer{limit: captureLimit}
	stderr := &cappedBuffer{limit: captureLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Failure(RunBash, KindTimeout, formatSeconds(e.opts.CommandTimeout))
	}
	if ctx.Err() != nil {
		return Failure(RunBash, KindCommandFailed, fmt.Sprintf("command cancelled: %v", ctx.Err()))
	}
	if err != nil {
		// A non-zero exit status is an ordinary result; the model reads the output.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Failure(RunBash, KindCommandFailed, err.Error())
		}
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\nSTDERR: " + stderr.String()
	}
	if strings.TrimSpace(output) == "" {
		output = "(no output)"
	}

	output, truncated := truncateRunes(output, e.opts.OutputLimit)
	if truncated {
		output += outputTruncatedMarker
	}
	res := OK(RunBash, output)
	res.Truncated = truncated
	return res
}

func (e *Executor) checkCommand(ctx context.Context, command string) (Result, bool) {
	decision, reason := e.commands.Decide(ctx, command)
	switch decision {
	case Allow:
		return Result{}, true
	case Confirm:
		if e.confirmer == nil {
			return Failure(RunBash, KindDenied, fmt.Sprintf("command denied by policy: %s (no confirmation available)", reason)), false
		}
		approved, err := e.confirmer.Confirm(ctx, command)
		if err != nil {
			return Failure(RunBash, KindDenied, fmt.Sprintf("command denied by policy: confirmation failed: %v", err)), false
		}
		if !approved {
			return Failure(RunBash, KindDenied, "command denied by policy: rejected by user"), false
		}
		return Result{}, true
	default:
		return Failure(RunBash, KindDenied, fmt.Sprintf("command denied by policy: %s", reason)), false
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// cappedBuffer keeps at most limit bytes and discards the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Len() int       { return b.buf.Len() }
func (b *cappedBuffer) String() string { return b.buf.String() }
