package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Kind classifies a per-host failure for reporting. Every failure recorded
// in a response set maps to exactly one kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnreachable
	KindConnect
	KindTimeout
	KindExec
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindConnect:
		return "connect"
	case KindTimeout:
		return "timeout"
	case KindExec:
		return "exec"
	default:
		return "unknown"
	}
}

// UnreachableError indicates address resolution produced no usable address
// for a node. No connection is attempted.
type UnreachableError struct {
	Name string
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: no usable address in node attributes", e.Name)
}

// TimeoutError indicates the handshake or execution exceeded the
// per-target timeout.
type TimeoutError struct {
	Host  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Host, e.After)
}

// ExitError indicates the remote operation completed with a nonzero
// exit status.
type ExitError struct {
	Host     string
	ExitCode int
	Stderr   []byte
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(string(e.Stderr))
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Host, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Host, e.ExitCode, msg)
}

// ConnectError wraps an SSH connection error with a user-friendly hint.
type ConnectError struct {
	Host string
	Err  error
	Hint string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v\n  hint: %s", e.Host, e.Err, e.Hint)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Classify maps an error to its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var unreach *UnreachableError
	if errors.As(err, &unreach) {
		return KindUnreachable
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return KindExec
	}
	var connect *ConnectError
	if errors.As(err, &connect) {
		return KindConnect
	}
	return KindUnknown
}

// WrapConnectError wraps an SSH connection error with a friendly hint.
// If the error doesn't match any known patterns, a generic hint is used
// so connection failures always classify as ConnectError.
func WrapConnectError(host string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	// Permission denied on SSH key file.
	if strings.Contains(msg, "permission denied") && strings.Contains(msg, "key") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "check SSH key permissions (chmod 600)",
		}
	}

	// SSH authentication failure.
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("verify your credentials. Try: ssh -v %s", host),
		}
	}

	// Connection refused.
	if strings.Contains(msg, "connection refused") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify SSH daemon is running on the target host",
		}
	}

	// DNS resolution failure.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify hostname is correct",
		}
	}
	if strings.Contains(msg, "no such host") || strings.Contains(msg, "lookup") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify hostname is correct",
		}
	}

	// Known hosts: missing entry.
	if strings.Contains(msg, "no known_hosts") || strings.Contains(msg, "knownhosts") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("use --insecure or connect once with: ssh %s", host),
		}
	}

	// Known hosts: key mismatch.
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("remove old key with: ssh-keygen -R %s", host),
		}
	}

	// Auth-specific SSH server error.
	var sshErr *ssh.ServerAuthError
	if errors.As(err, &sshErr) {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("verify your credentials. Try: ssh -v %s", host),
		}
	}

	// Timeouts at the transport level pass through for the runner to tag.
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &ConnectError{
		Host: host,
		Err:  err,
		Hint: "verify the host is reachable",
	}
}
