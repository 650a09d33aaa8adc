package procnet

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
)

// Resolver reads process command lines from /proc/<pid>/cmdline.
type Resolver struct {
	fs procfs.FS
}

// NewResolver creates a Resolver for the procfs mounted at root.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	pfs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", root, err)
	}
	return &Resolver{fs: pfs}, nil
}

// CommandLine returns the arguments of pid joined by single spaces.
// Kernel threads have no arguments and yield an empty string.
func (r *Resolver) CommandLine(ctx context.Context, pid int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := r.fs.Proc(pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	args, err := p.CmdLine()
	if err != nil {
		return "", fmt.Errorf("read cmdline of %d: %w", pid, err)
	}
	return strings.Join(args, " "), nil
}
