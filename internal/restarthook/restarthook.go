// Package restarthook executes the caller-supplied post-switch
// restart command. It never influences whether the switch itself
// happened — by the time it runs, the new release is already the one
// bin symlinks point at — it only reports whether the process the
// operator asked for came back healthy.
//
// Grounded on the subprocess-with-timeout idiom of the teacher's
// apply.go healthCheck (a command raced against a timer), reimplemented
// with exec.CommandContext and context.WithTimeout to run one short
// restart command and observe its exit status.
package restarthook

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// DefaultTimeout bounds how long a restart command may run before it
// is killed and treated as a failure.
const DefaultTimeout = 30 * time.Second

// Run executes command through the shell, subject to timeout. A
// non-zero exit (including a timeout kill) is reported as
// errkind.RestartFailed carrying the command's combined output.
func Run(ctx context.Context, command string, timeout time.Duration) error {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errkind.New(errkind.RestartFailed, "restart command timed out: "+strings.TrimSpace(out.String()))
	}
	if err != nil {
		return errkind.Wrap(errkind.RestartFailed, strings.TrimSpace(out.String()), err)
	}
	return nil
}
