// Package ssh owns one transport session to one host: connect,
// authenticate, execute, disconnect. A Client is bound to exactly one
// target and is never shared across concurrent operations.
package ssh

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	sshconfig "github.com/kevinburke/ssh_config"

	"github.com/agent462/drover/internal/logging"
	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/pathutil"
)

// DialConfig holds transport-level options that are not part of a target.
type DialConfig struct {
	// HostKeyCallback overrides the default host key verification.
	// If nil, knownhosts is used (with AcceptUnknownHosts controlling unknowns).
	HostKeyCallback ssh.HostKeyCallback

	// AcceptUnknownHosts controls whether to accept hosts not in known_hosts.
	AcceptUnknownHosts bool

	// Logger observes command text and exit status. Nil means discard.
	Logger *slog.Logger
}

// Client wraps an SSH connection to a single target.
type Client struct {
	target    node.Target
	sshClient *ssh.Client
	log       *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Dial connects and authenticates to the target. A target whose address
// never resolved fails fast with UnreachableError before any dial.
func Dial(ctx context.Context, target node.Target, conf DialConfig) (*Client, error) {
	if target.Address == node.UnknownAddress {
		return nil, &UnreachableError{Name: target.Name}
	}

	log := conf.Logger
	if log == nil {
		log = logging.Discard()
	}

	addr, user, authMethods := resolveConnection(target)

	hostKeyCallback, err := resolveHostKeyCallback(conf)
	if err != nil {
		return nil, WrapConnectError(target.Address, fmt.Errorf("host key callback: %w", err))
	}

	sshConf := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	conn, err := dialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, WrapConnectError(target.Address, fmt.Errorf("dial %s: %w", addr, err))
	}

	// Perform SSH handshake with context cancellation.
	sshConn, chans, reqs, err := newClientConn(ctx, conn, addr, sshConf)
	if err != nil {
		conn.Close()
		return nil, WrapConnectError(target.Address, fmt.Errorf("ssh handshake with %s: %w", addr, err))
	}

	return &Client{
		target:    target,
		sshClient: ssh.NewClient(sshConn, chans, reqs),
		log:       log,
	}, nil
}

// RunCommand executes a command on the connected host and returns
// stdout, stderr, exit code, and any error. A nonzero remote exit is
// reported through exitCode, not err.
func (c *Client) RunCommand(ctx context.Context, command string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf safeBuffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	start := time.Now()

	// Run the command, respecting context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// Signal the session to close, which will cause Run to return.
		session.Signal(ssh.SIGKILL)
		session.Close()
		logging.ExecError(c.log, c.target.Address, command, ctx.Err())
		return nil, nil, -1, ctx.Err()
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				logging.Exec(c.log, c.target.Address, command, exitErr.ExitStatus(), time.Since(start))
				return outBuf.Bytes(), errBuf.Bytes(), exitErr.ExitStatus(), nil
			}
			logging.ExecError(c.log, c.target.Address, command, err)
			return outBuf.Bytes(), errBuf.Bytes(), -1, err
		}
		logging.Exec(c.log, c.target.Address, command, 0, time.Since(start))
		return outBuf.Bytes(), errBuf.Bytes(), 0, nil
	}
}

// Close closes the underlying SSH connection. Safe to call more than
// once; later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.sshClient != nil {
			c.closeErr = c.sshClient.Close()
		}
	})
	return c.closeErr
}

// Target returns the target this client is bound to.
func (c *Client) Target() node.Target {
	return c.target
}

// SSHClient exposes the underlying connection for SFTP sessions.
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

// resolveConnection builds the address, username, and auth methods for a
// target. Fields the target leaves empty fall back to ssh_config, then
// the environment.
func resolveConnection(target node.Target) (addr, user string, methods []ssh.AuthMethod) {
	user = target.User
	if user == "" {
		user = sshconfig.Get(target.Address, "User")
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "root"
	}

	port := target.Port
	if port == 0 {
		portStr := sshconfig.Get(target.Address, "Port")
		if portStr != "" {
			fmt.Sscanf(portStr, "%d", &port)
		}
	}
	if port == 0 {
		port = 22
	}

	addr = net.JoinHostPort(target.Address, fmt.Sprintf("%d", port))
	methods = buildAuthMethods(target)
	return addr, user, methods
}

// buildAuthMethods constructs the ordered auth chain: explicit keys take
// precedence, then the SSH agent, then the password.
func buildAuthMethods(target node.Target) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	// 1. Explicit key files.
	keyFiles := target.Keys
	if len(keyFiles) == 0 && target.Password == "" {
		keyFiles = resolveKeyFiles(target.Address)
	}
	for _, keyFile := range keyFiles {
		if signer := loadKeySigner(keyFile); signer != nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	// 2. SSH agent.
	if agentAuth := agentAuthMethod(); agentAuth != nil {
		methods = append(methods, agentAuth)
	}

	// 3. Password.
	if target.Password != "" {
		methods = append(methods, ssh.Password(target.Password))
	}

	return methods
}

// sharedAgent holds a lazily-initialized, process-wide SSH agent connection.
// Uses a mutex instead of sync.Once so a failed dial can be retried.
var sharedAgent struct {
	mu     sync.Mutex
	conn   net.Conn
	client agent.ExtendedAgent
}

// CloseAgent closes the shared SSH agent connection, if any.
// This is a no-op if no agent connection has been established.
func CloseAgent() {
	sharedAgent.mu.Lock()
	defer sharedAgent.mu.Unlock()
	if sharedAgent.conn != nil {
		sharedAgent.conn.Close()
		sharedAgent.client = nil
		sharedAgent.conn = nil
	}
}

// agentAuthMethod returns an auth method using the SSH agent, or nil
// if the agent is unavailable or has no keys.
func agentAuthMethod() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}

	sharedAgent.mu.Lock()
	defer sharedAgent.mu.Unlock()

	// If we have an existing client, check its health.
	if sharedAgent.client != nil {
		if keys, err := sharedAgent.client.List(); err == nil {
			if len(keys) > 0 {
				return ssh.PublicKeysCallback(sharedAgent.client.Signers)
			}
			return nil
		}
		// Stale connection — close and retry.
		sharedAgent.conn.Close()
		sharedAgent.client = nil
		sharedAgent.conn = nil
	}

	// Attempt a fresh connection.
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	sharedAgent.conn = conn
	sharedAgent.client = agent.NewClient(conn)

	keys, err := sharedAgent.client.List()
	if err != nil || len(keys) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(sharedAgent.client.Signers)
}

// resolveKeyFiles returns key file paths from ssh_config and default locations.
func resolveKeyFiles(host string) []string {
	var files []string

	identity := sshconfig.Get(host, "IdentityFile")
	if identity != "" {
		expanded := pathutil.ExpandHome(identity)
		if _, err := os.Stat(expanded); err == nil {
			files = append(files, expanded)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return files
	}
	defaults := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
	for _, f := range defaults {
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}

	return files
}

// loadKeySigner reads a private key file and returns a signer.
func loadKeySigner(path string) ssh.Signer {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil
	}
	return signer
}

// resolveHostKeyCallback builds the host key callback.
func resolveHostKeyCallback(conf DialConfig) (ssh.HostKeyCallback, error) {
	if conf.HostKeyCallback != nil {
		return conf.HostKeyCallback, nil
	}

	if conf.AcceptUnknownHosts {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	knownHostsPath := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no known_hosts file found at %s; use --insecure to skip host key verification", knownHostsPath)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

// dialContext dials a network address with context cancellation support.
func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, network, addr)
}

// newClientConn performs the SSH handshake with context cancellation.
func newClientConn(ctx context.Context, conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	type result struct {
		conn  ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}

	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		done <- result{c, chans, reqs, err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, nil, nil, ctx.Err()
	case r := <-done:
		return r.conn, r.chans, r.reqs, r.err
	}
}
