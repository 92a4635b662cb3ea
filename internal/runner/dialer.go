package runner

import (
	"context"
	"sync"

	"github.com/agent462/drover/internal/node"
	dssh "github.com/agent462/drover/internal/ssh"
)

// sshDialer is the default transport: one-shot SSH connections, closed
// by the pool after each operation.
type sshDialer struct {
	conf dssh.DialConfig
}

func (d *sshDialer) Dial(ctx context.Context, target node.Target) (Conn, error) {
	return dssh.Dial(ctx, target, d.conf)
}

// CloseConn marks sshDialer connections as one-shot.
func (d *sshDialer) CloseConn(conn Conn) error {
	return conn.Close()
}

// dialResult is shared between goroutines waiting on the same target's
// dial.
type dialResult struct {
	conn Conn
	err  error
}

// cachingDialer keeps connections open across commands within one
// session. Concurrent dials to the same target are coalesced. It does
// not implement ConnCloser; connections live until closeAll.
type cachingDialer struct {
	inner Dialer

	mu       sync.Mutex
	conns    map[string]Conn
	inflight map[string]chan dialResult
}

func (d *cachingDialer) Dial(ctx context.Context, target node.Target) (Conn, error) {
	key := Key(target)

	d.mu.Lock()
	if d.inflight == nil {
		d.inflight = make(map[string]chan dialResult)
	}

	// Fast path: already connected.
	if conn, ok := d.conns[key]; ok {
		d.mu.Unlock()
		return conn, nil
	}

	// Another goroutine may already be dialing this target.
	if ch, ok := d.inflight[key]; ok {
		d.mu.Unlock()
		select {
		case res := <-ch:
			// Put the result back so other waiters can also read it.
			ch <- res
			return res.conn, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ch := make(chan dialResult, 1)
	d.inflight[key] = ch
	d.mu.Unlock()

	conn, err := d.inner.Dial(ctx, target)
	if err == nil {
		conn = &sessionConn{Conn: conn, key: key, cache: d}
	}

	d.mu.Lock()
	delete(d.inflight, key)
	if err == nil {
		d.conns[key] = conn
	}
	d.mu.Unlock()

	ch <- dialResult{conn: conn, err: err}
	return conn, err
}

// evict drops a dead connection from the cache so the next command
// re-dials its target. No-op if the slot already holds a newer conn.
func (d *cachingDialer) evict(key string, conn Conn) {
	d.mu.Lock()
	if d.conns[key] == conn {
		delete(d.conns, key)
	}
	d.mu.Unlock()
	conn.Close()
}

// sessionConn ties a cached connection to its cache slot. A transport
// error on Exec or Upload evicts it, so the next session command
// re-dials instead of reusing a dead connection. Remote exit statuses
// are not transport errors and never come back through err here.
type sessionConn struct {
	Conn
	key   string
	cache *cachingDialer
}

func (c *sessionConn) Exec(ctx context.Context, command string) (stdout, stderr []byte, exitCode int, err error) {
	stdout, stderr, exitCode, err = c.Conn.Exec(ctx, command)
	if err != nil {
		c.cache.evict(c.key, c)
	}
	return stdout, stderr, exitCode, err
}

func (c *sessionConn) Upload(ctx context.Context, payload []byte, remotePath string) error {
	err := c.Conn.Upload(ctx, payload, remotePath)
	if err != nil {
		c.cache.evict(c.key, c)
	}
	return err
}

// closeAll closes every cached connection and resets the cache.
func (d *cachingDialer) closeAll() {
	d.mu.Lock()
	conns := d.conns
	d.conns = make(map[string]Conn)
	d.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
