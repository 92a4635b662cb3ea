package ssh

import (
	"context"
	"fmt"

	"github.com/agent462/drover/internal/transfer"
)

// Upload writes a payload to a remote path over this client's
// connection, verifying integrity.
func (c *Client) Upload(ctx context.Context, payload []byte, remotePath string) error {
	if _, _, err := transfer.PushBytes(ctx, c.sshClient, payload, remotePath); err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	c.log.Info("payload uploaded",
		"host", c.target.Address,
		"remote_path", remotePath,
		"bytes", len(payload),
	)
	return nil
}
