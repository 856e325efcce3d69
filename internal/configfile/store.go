// Package configfile reads and writes the daemon's configuration file,
// either on the local disk or on the router over SSH.
package configfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/route-beacon/bird-collector/internal/control"
)

// Store reads and replaces a config file by path.
type Store interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, content string) error
}

// Local reads and writes files on this host.
type Local struct{}

func (Local) Read(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading config file: %w", err)
	}
	return string(data), nil
}

// Write replaces the file with a rename from a temporary sibling, keeping
// the existing permissions.
func (Local) Write(ctx context.Context, path, content string) error {
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bird-config-*")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting config file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// Executor runs a shell command on a remote host. control.SSH satisfies it.
type Executor interface {
	Exec(ctx context.Context, command, stdin string) (string, error)
}

// Remote reads files on the router with cat and writes them by piping
// into it.
type Remote struct {
	exec Executor
}

func NewRemote(exec Executor) *Remote {
	return &Remote{exec: exec}
}

func (r *Remote) Read(ctx context.Context, path string) (string, error) {
	out, err := r.exec.Exec(ctx, "cat "+control.ShellQuote(path), "")
	if err != nil {
		return "", fmt.Errorf("reading remote config file: %w", err)
	}
	return out, nil
}

func (r *Remote) Write(ctx context.Context, path, content string) error {
	if _, err := r.exec.Exec(ctx, "cat > "+control.ShellQuote(path), content); err != nil {
		return fmt.Errorf("writing remote config file: %w", err)
	}
	return nil
}
