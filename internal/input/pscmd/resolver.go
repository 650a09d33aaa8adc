package pscmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Resolver asks ps(1) for a process command line. It is the portable
// fallback for hosts without a Linux procfs.
type Resolver struct {
	path string
}

// NewResolver locates the ps binary. An empty path searches $PATH.
func NewResolver(path string) (*Resolver, error) {
	if path == "" {
		path = "ps"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("locate ps: %w", err)
	}
	return &Resolver{path: resolved}, nil
}

// CommandLine runs `ps -o command= -p <pid>`. A process that no longer
// exists makes ps exit non-zero, which is returned as an error.
func (r *Resolver) CommandLine(ctx context.Context, pid int) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.path, "-o", "command=", "-p", strconv.Itoa(pid))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("ps %d: %w: %s", pid, err, msg)
		}
		return "", fmt.Errorf("ps %d: %w", pid, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
