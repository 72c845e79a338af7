// Package device wraps the device capabilities the gateway treats as
// opaque collaborators: storage permission and share/export.
package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// PermissionChecker reports whether the gateway may write to a directory.
// Checked proactively before any download starts.
type PermissionChecker interface {
	EnsureWritable(ctx context.Context, dir string) error
}

// Sharer hands a materialized file to the platform share/export surface.
// Share failures never roll back a completed download.
type Sharer interface {
	Share(ctx context.Context, localPath string) error
}

// FSPermissionChecker probes writability by creating the directory and
// touching a marker file inside it.
type FSPermissionChecker struct{}

func (FSPermissionChecker) EnsureWritable(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write-probe")

	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}

	f.Close()
	os.Remove(probe)

	return nil
}

// NoopSharer is used when no share surface is configured.
type NoopSharer struct{}

func (NoopSharer) Share(ctx context.Context, localPath string) error {
	return nil
}
