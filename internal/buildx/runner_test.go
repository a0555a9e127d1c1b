package buildx

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// TestMain verifies that no runner test leaves goroutines behind (e.g. the
// stdio copy goroutines os/exec starts for non-file writers).
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestRunner returns an ExecRunner with captured output buffers.
func newTestRunner() (*ExecRunner, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &ExecRunner{
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
		Logger: zap.NewNop(),
	}, &stdout, &stderr
}

func shInvocation(script string) model.Invocation {
	return model.Invocation{Executable: "sh", Args: []string{"-c", script}}
}

func TestExecRunner_Success(t *testing.T) {
	r, stdout, stderr := newTestRunner()

	err := r.Run(context.Background(), shInvocation("echo building; echo progress >&2"))
	require.NoError(t, err)
	assert.Equal(t, "building\n", stdout.String())
	assert.Equal(t, "progress\n", stderr.String())
}

// TestExecRunner_ExitCodePassthrough verifies that the child's exit status
// reaches the caller unchanged.
func TestExecRunner_ExitCodePassthrough(t *testing.T) {
	r, _, stderr := newTestRunner()

	err := r.Run(context.Background(), shInvocation("echo 'ERROR: failed to solve' >&2; exit 17"))
	require.Error(t, err)

	var buildErr *model.BuildFailedError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, 17, buildErr.Code)
	assert.Equal(t, "sh -c 'echo '\\''ERROR: failed to solve'\\'' >&2; exit 17'", buildErr.Command)
	assert.Contains(t, stderr.String(), "failed to solve")
}

func TestExecRunner_CommandNotFound(t *testing.T) {
	r, _, _ := newTestRunner()

	err := r.Run(context.Background(), model.Invocation{Executable: "definitely-not-a-build-tool-xyz"})
	require.Error(t, err)

	var buildErr *model.BuildFailedError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, ExitCommandNotFound, buildErr.Code)
}

func TestExecRunner_EmptyExecutable(t *testing.T) {
	r, _, _ := newTestRunner()

	err := r.Run(context.Background(), model.Invocation{})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
}

func TestExecRunner_EnvAndDir(t *testing.T) {
	r, stdout, _ := newTestRunner()
	dir := t.TempDir()

	inv := shInvocation(`printf '%s %s' "$BUILDX_NO_DEFAULT_ATTESTATIONS" "$(pwd)"`)
	inv.Dir = dir
	inv.Env = []string{"BUILDX_NO_DEFAULT_ATTESTATIONS=1"}

	require.NoError(t, r.Run(context.Background(), inv))

	got := strings.SplitN(stdout.String(), " ", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0])
	// Compare base names only; the temp dir may be reached through a symlink.
	assert.Equal(t, filepath.Base(dir), filepath.Base(got[1]))
}

func TestExecRunner_ContextCancel(t *testing.T) {
	r, _, _ := newTestRunner()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, shInvocation("exec sleep 10"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "child should be killed on cancel")

	var buildErr *model.BuildFailedError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, int(model.ExitGeneralError), buildErr.Code)
}

func TestDryRunner(t *testing.T) {
	var out bytes.Buffer
	d := &DryRunner{Out: &out}

	inv := model.Invocation{Executable: "docker", Args: []string{"buildx", "build", "--label", "a=b c", "."}}
	require.NoError(t, d.Run(context.Background(), inv))
	assert.Equal(t, "docker buildx build --label 'a=b c' .\n", out.String())
}
