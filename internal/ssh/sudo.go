package ssh

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/agent462/drover/internal/logging"
)

// Exec runs a command applying the target's elevation rules: sudo off
// runs the command as-is; sudo with a password available delivers it
// non-interactively over a PTY; sudo with key-only credentials issues
// `sudo -n` and relies on the key identity's NOPASSWD rights. -n makes
// a host that unexpectedly wants a password fail immediately instead of
// hanging on a prompt nothing will answer.
func (c *Client) Exec(ctx context.Context, command string) (stdout, stderr []byte, exitCode int, err error) {
	switch {
	case !c.target.Sudo:
		return c.RunCommand(ctx, command)
	case c.target.Password != "":
		return c.RunCommandWithSudo(ctx, command, c.target.Password)
	default:
		return c.RunCommand(ctx, "sudo -n "+command)
	}
}

// RunCommandWithSudo executes a command under sudo, delivering the
// password non-interactively over a PTY. The sudo prompt is stripped
// from stdout. With a PTY the remote merges stderr into stdout, so
// stderr is always empty.
func (c *Client) RunCommandWithSudo(ctx context.Context, command, password string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	// sudo refuses to read the password without a terminal.
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", 80, 40, modes); err != nil {
		return nil, nil, -1, fmt.Errorf("request pty: %w", err)
	}

	var outBuf safeBuffer
	session.Stdout = &outBuf
	session.Stderr = &outBuf

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("stdin pipe: %w", err)
	}

	wrapped := "sudo -S " + command

	start := time.Now()
	if err := session.Start(wrapped); err != nil {
		return nil, nil, -1, fmt.Errorf("start command: %w", err)
	}

	// Feed the password for sudo's -S prompt. Writing up front avoids
	// prompt detection; sudo reads it from the PTY when it needs it.
	fmt.Fprintln(stdin, password)
	stdin.Close()

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		logging.ExecError(c.log, c.target.Address, command, ctx.Err())
		return nil, nil, -1, ctx.Err()
	case err := <-done:
		out := stripSudoPrompt(outBuf.Bytes())
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				logging.Exec(c.log, c.target.Address, command, exitErr.ExitStatus(), time.Since(start))
				return out, nil, exitErr.ExitStatus(), nil
			}
			logging.ExecError(c.log, c.target.Address, command, err)
			return out, nil, -1, err
		}
		logging.Exec(c.log, c.target.Address, command, 0, time.Since(start))
		return out, nil, 0, nil
	}
}

// stripSudoPrompt removes sudo password prompt lines from PTY output.
// Both the "[sudo] password for user:" and bare "Password:" styles are
// recognized.
func stripSudoPrompt(out []byte) []byte {
	lines := bytes.Split(out, []byte("\n"))
	kept := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("[sudo] password for")) {
			continue
		}
		if bytes.Equal(trimmed, []byte("Password:")) {
			continue
		}
		kept = append(kept, line)
	}
	return bytes.Join(kept, []byte("\n"))
}
