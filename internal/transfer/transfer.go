// Package transfer provides SFTP-based payload push operations with
// integrity verification.
package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// PushBytes writes an in-memory payload to a remote path over SFTP.
// It computes a SHA-256 checksum during transfer and verifies it by
// re-reading the remote file on the same SFTP session.
func PushBytes(ctx context.Context, sshClient *ssh.Client, payload []byte, remotePath string) (checksum string, bytesWritten int64, err error) {
	return push(ctx, sshClient, bytes.NewReader(payload), remotePath)
}

// PushFile uploads a local file to a remote path over SFTP.
func PushFile(ctx context.Context, sshClient *ssh.Client, localPath, remotePath string) (checksum string, bytesWritten int64, err error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("open local file: %w", err)
	}
	defer localFile.Close()

	return push(ctx, sshClient, localFile, remotePath)
}

func push(ctx context.Context, sshClient *ssh.Client, src io.Reader, remotePath string) (checksum string, bytesWritten int64, err error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", 0, fmt.Errorf("sftp client: %w", err)
	}
	defer sftpClient.Close()

	// Ensure the remote directory exists. Use path (not filepath)
	// because remotePath is always a Unix path on the remote host.
	remoteDir := path.Dir(remotePath)
	if remoteDir != "." && remoteDir != "/" {
		if err := sftpClient.MkdirAll(remoteDir); err != nil {
			return "", 0, fmt.Errorf("create remote dir %s: %w", remoteDir, err)
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return "", 0, fmt.Errorf("create remote file: %w", err)
	}

	hasher := sha256.New()
	writer := io.MultiWriter(remoteFile, hasher)

	written, err := copyWithContext(ctx, writer, src)
	// Close the remote file to flush writes before checksum verification.
	remoteFile.Close()
	if err != nil {
		return "", written, fmt.Errorf("copy: %w", err)
	}

	localChecksum := hex.EncodeToString(hasher.Sum(nil))

	remoteChecksum, err := remoteSHA256(sftpClient, remotePath)
	if err != nil {
		return localChecksum, written, fmt.Errorf("remote checksum verification failed: %w", err)
	}
	if remoteChecksum != localChecksum {
		return localChecksum, written, fmt.Errorf("checksum mismatch: local=%s remote=%s", localChecksum, remoteChecksum)
	}

	return localChecksum, written, nil
}

// remoteSHA256 computes the SHA-256 checksum of a remote file by reading
// it back over SFTP. This avoids shell command injection risks and does
// not require sha256sum on the remote host.
func remoteSHA256viasftp(sftpClient *sftp.Client, remotePath string) (string, error) {
	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("open remote file for checksum: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("read remote file for checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

var remoteSHA256 = remoteSHA256viasftp

// copyWithContext copies from src to dst, checking for context
// cancellation between buffered reads.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
