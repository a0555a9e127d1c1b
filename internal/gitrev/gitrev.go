package gitrev

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Revision identifies the state of the build context's git checkout.
type Revision struct {
	// Commit is the full SHA of HEAD. Empty when unknown.
	Commit string

	// Branch is the current branch name, or "HEAD" when detached.
	Branch string

	// Dirty is true when the working tree has uncommitted changes.
	Dirty bool
}

// IsZero reports whether no revision information is available.
func (r Revision) IsZero() bool {
	return r.Commit == ""
}

// String returns the commit SHA with a "-dirty" suffix when the working
// tree has local modifications, or "" when unknown.
func (r Revision) String() string {
	if r.Commit == "" {
		return ""
	}
	if r.Dirty {
		return r.Commit + "-dirty"
	}
	return r.Commit
}

// Short returns the first 12 characters of the commit, keeping the dirty
// suffix. Useful for tags and log lines.
func (r Revision) Short() string {
	if r.Commit == "" {
		return ""
	}
	c := r.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	if r.Dirty {
		return c + "-dirty"
	}
	return c
}

// Describe inspects the git checkout containing dir.
//
// It never returns an error for "not a repository" or "git not
// installed"; those yield a zero Revision. Only context cancellation is
// reported, so a caller can abort a slow git call.
func Describe(ctx context.Context, dir string) (Revision, error) {
	commit, err := runGit(ctx, dir, "rev-parse", "--verify", "HEAD")
	if err != nil {
		if ctx.Err() != nil {
			return Revision{}, ctx.Err()
		}
		return Revision{}, nil
	}

	rev := Revision{Commit: strings.TrimSpace(commit)}

	if branch, err := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		rev.Branch = strings.TrimSpace(branch)
	}

	// --porcelain prints one line per modified or untracked path, nothing
	// for a clean tree.
	if status, err := runGit(ctx, dir, "status", "--porcelain"); err == nil {
		rev.Dirty = strings.TrimSpace(status) != ""
	}

	return rev, nil
}

// runGit executes a git command with -C dir and returns stdout. On
// failure the error includes git's stderr output.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	cmd := exec.CommandContext(ctx, "git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", fmt.Errorf("git %s failed: %s: %w", strings.Join(args, " "), stderrStr, err)
		}
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}

	return stdout.String(), nil
}
