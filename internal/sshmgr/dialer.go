// ABOUTME: SSH transport backed by golang.org/x/crypto/ssh with password auth
// ABOUTME: Defines the Dialer/Client seams the Manager uses so tests can run offline

package sshmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer establishes a connection to a remote host.
type Dialer interface {
	Dial(addr, username, password string) (Client, error)
}

// Client is one live connection capable of running commands.
type Client interface {
	// Run executes a command and captures stdout, stderr, and the exit code.
	// A non-zero exit code is not an error; transport failures are.
	Run(ctx context.Context, command string) (*ExecResult, error)

	Close() error
}

// passwordDialer dials over TCP with password authentication.
// Host keys are accepted blindly, matching the original single-user
// deployment model; known_hosts verification is a deliberate non-feature.
type passwordDialer struct {
	connectTimeout time.Duration
}

func (d *passwordDialer) Dial(addr, username, password string) (Client, error) {
	cfg := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.connectTimeout,
	}

	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial: %w", err)
	}
	return &sshClient{conn: conn}, nil
}

// sshClient wraps an *ssh.Client, running each command in its own session.
type sshClient struct {
	conn *ssh.Client
}

func (c *sshClient) Run(ctx context.Context, command string) (*ExecResult, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		result := &ExecResult{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitStatus()
				return result, nil
			}
			return nil, fmt.Errorf("running command: %w", err)
		}
		return result, nil

	case <-ctx.Done():
		// Best effort: the remote process may keep running, but closing the
		// session tears down the channel so we stop waiting on it.
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("command timed out: %w", ctx.Err())
	}
}

func (c *sshClient) Close() error {
	return c.conn.Close()
}
