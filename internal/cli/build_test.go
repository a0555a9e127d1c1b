package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/rayserve-image/internal/buildx"
	"github.com/shinji-kodama/rayserve-image/internal/config"
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// recordingRunner captures invocations instead of starting a process.
type recordingRunner struct {
	invocations []model.Invocation
	err         error
}

func (r *recordingRunner) Run(_ context.Context, inv model.Invocation) error {
	r.invocations = append(r.invocations, inv)
	return r.err
}

var fixedTime = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// setupCLI isolates a test from the process environment: a fresh working
// directory, a fake environment, a fixed clock and build ID, and a
// recording runner for non-dry-run builds.
func setupCLI(t *testing.T, env map[string]string) *recordingRunner {
	t.Helper()

	origWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(origWD) })

	runner := &recordingRunner{}
	origRunner, origNow, origID, origLookup, origPing := newRunner, now, newBuildID, lookupEnv, pingDaemon
	origNoColor := color.NoColor
	t.Cleanup(func() {
		newRunner, now, newBuildID, lookupEnv, pingDaemon = origRunner, origNow, origID, origLookup, origPing
		color.NoColor = origNoColor
	})

	newRunner = func(dryRun bool, out io.Writer) buildx.Runner {
		if dryRun {
			return &buildx.DryRunner{Out: out}
		}
		return runner
	}
	now = func() time.Time { return fixedTime }
	newBuildID = func() string { return "0b7e5a52-6f0e-4c4b-9a1c-5d7e3f1a2b3c" }
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	pingDaemon = func(context.Context) error { return nil }
	color.NoColor = true

	return runner
}

// executeCommand runs the root command with args and returns stdout,
// stderr and the returned error.
func executeCommand(args ...string) (string, string, error) {
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestPrintCommand_Defaults(t *testing.T) {
	tests := []struct {
		variant string
		want    string
	}{
		{
			variant: "cpu",
			want: "docker buildx build --platform linux/amd64" +
				" --build-arg BASE_IMAGE=rayproject/ray:2.40.0-py311-cpu" +
				" --build-arg VLLM_VERSION=0.6.5" +
				" -t localhost:5000/ray-vllm:2.40.0-vllm0.6.5-cpu" +
				" -f Dockerfile.cpu --push .\n",
		},
		{
			variant: "GPU",
			want: "docker buildx build --platform linux/amd64" +
				" --build-arg BASE_IMAGE=rayproject/ray:2.40.0-py311-gpu" +
				" --build-arg VLLM_VERSION=0.6.5" +
				" -t localhost:5000/ray-vllm:2.40.0-vllm0.6.5-gpu" +
				" -f Dockerfile.gpu --push .\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			setupCLI(t, nil)

			stdout, _, err := executeCommand("print", tt.variant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestPrintCommand_Registry(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantTag string
	}{
		{
			name:    "default registry",
			wantTag: "-t localhost:5000/ray-vllm:",
		},
		{
			name:    "environment overrides default",
			env:     map[string]string{config.RegistryEnvVar: "ghcr.io/acme"},
			wantTag: "-t ghcr.io/acme/ray-vllm:",
		},
		{
			name:    "empty environment value keeps default",
			env:     map[string]string{config.RegistryEnvVar: ""},
			wantTag: "-t localhost:5000/ray-vllm:",
		},
		{
			name:    "flag overrides environment",
			env:     map[string]string{config.RegistryEnvVar: "ghcr.io/acme"},
			args:    []string{"--registry", "registry.example.com:5000"},
			wantTag: "-t registry.example.com:5000/ray-vllm:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCLI(t, tt.env)

			args := append([]string{"print", "gpu"}, tt.args...)
			stdout, _, err := executeCommand(args...)
			require.NoError(t, err)
			assert.Contains(t, stdout, tt.wantTag)
		})
	}
}

func TestPrintCommand_ExtraArgsPassThrough(t *testing.T) {
	setupCLI(t, nil)

	stdout, _, err := executeCommand("print", "gpu", "--",
		"--no-cache", "--progress=plain", "--secret", "id=hf,env=HF_TOKEN")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stdout,
		" --push --no-cache --progress=plain --secret id=hf,env=HF_TOKEN .\n"), stdout)
}

func TestPrintCommand_Overrides(t *testing.T) {
	setupCLI(t, nil)

	stdout, _, err := executeCommand("print", "cpu", "--no-push",
		"--ray-version", "2.41.0", "--vllm-version", "0.7.0", "--tag", "latest",
		"--platform", "linux/arm64", "--dockerfile-dir", "docker", "--context", "src")
	require.NoError(t, err)
	assert.Equal(t, "docker buildx build --platform linux/arm64"+
		" --build-arg BASE_IMAGE=rayproject/ray:2.41.0-py311-cpu"+
		" --build-arg VLLM_VERSION=0.7.0"+
		" -t localhost:5000/ray-vllm:latest"+
		" -f docker/Dockerfile.cpu --load src\n", stdout)
}

func TestPrintCommand_Labels(t *testing.T) {
	setupCLI(t, nil)

	stdout, _, err := executeCommand("print", "gpu", "--labels",
		"--label", "team=ml", "--label", "org.opencontainers.image.title=Ray Serve")
	require.NoError(t, err)

	assert.Contains(t, stdout, "--label org.opencontainers.image.created=2026-10-16T09:30:00Z")
	assert.Contains(t, stdout, "--label rayserve.build-id=0b7e5a52-6f0e-4c4b-9a1c-5d7e3f1a2b3c")
	assert.Contains(t, stdout, "--label rayserve.managed-by=rayserve-image")
	assert.Contains(t, stdout, "--label team=ml")
	assert.Contains(t, stdout, "--label 'org.opencontainers.image.title=Ray Serve'", "user labels win on collisions")
	assert.NotContains(t, stdout, "org.opencontainers.image.revision", "no git checkout")

	// Labels come after -f and before --push.
	assert.Less(t, strings.Index(stdout, " -f "), strings.Index(stdout, "--label"))
	assert.Less(t, strings.LastIndex(stdout, "--label"), strings.Index(stdout, "--push"))
}

// TestPrintCommand_Deterministic runs print twice with the real clock and
// build ID generator; without --labels nothing time- or run-dependent may
// reach the command line.
func TestPrintCommand_Deterministic(t *testing.T) {
	setupCLI(t, nil)
	newBuildID = uuid.NewString
	now = time.Now

	first, _, err := executeCommand("print", "gpu")
	require.NoError(t, err)
	second, _, err := executeCommand("print", "gpu")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, first, "--label")
}

func TestPrintCommand_ReservedLabelPrefix(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "without generated labels", args: []string{"print", "gpu", "--label", "rayserve.managed-by=x"}},
		{name: "with generated labels", args: []string{"print", "gpu", "--labels", "--label", "rayserve.variant=custom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCLI(t, nil)

			stdout, _, err := executeCommand(tt.args...)
			require.Error(t, err)
			assert.Empty(t, stdout)
			assert.Equal(t, int(model.ExitInvalidInput), ReportError(io.Discard, err))
			assert.Contains(t, err.Error(), "reserved")
		})
	}
}

func TestPrintCommand_ConfigFile(t *testing.T) {
	setupCLI(t, map[string]string{config.RegistryEnvVar: "ghcr.io/acme"})

	content := "vllmVersion: \"0.7.0\"\nregistry: file.example.com\nextraArgs:\n  - --pull\n"
	require.NoError(t, os.WriteFile("rayserve-image.yaml", []byte(content), 0o644))

	stdout, _, err := executeCommand("print", "gpu")
	require.NoError(t, err)
	assert.Contains(t, stdout, "--build-arg VLLM_VERSION=0.7.0")
	assert.Contains(t, stdout, "-t ghcr.io/acme/ray-vllm:2.40.0-vllm0.7.0-gpu", "environment beats config file")
	assert.Contains(t, stdout, "--push --pull .")
}

func TestPrintCommand_ExplicitConfigErrors(t *testing.T) {
	setupCLI(t, nil)

	require.NoError(t, os.WriteFile("bad.yaml", []byte("rayVersoin: 2.40.0\n"), 0o644))

	_, _, err := executeCommand("print", "gpu", "--config", "bad.yaml")
	require.Error(t, err)
	assert.Equal(t, int(model.ExitConfigError), ReportError(io.Discard, err))

	_, _, err = executeCommand("print", "gpu", "--config", "missing.yaml")
	require.Error(t, err)
	assert.Equal(t, int(model.ExitConfigError), ReportError(io.Discard, err))
}

func TestPrintCommand_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown variant", args: []string{"print", "tpu"}},
		{name: "empty version", args: []string{"print", "gpu", "--vllm-version", ""}},
		{name: "malformed label", args: []string{"print", "gpu", "--label", "novalue"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCLI(t, nil)

			_, _, err := executeCommand(tt.args...)
			require.Error(t, err)
			assert.Equal(t, int(model.ExitInvalidInput), ReportError(io.Discard, err))
		})
	}
}

func TestPrintCommand_JSON(t *testing.T) {
	setupCLI(t, nil)

	stdout, _, err := executeCommand("print", "cpu", "--json")
	require.NoError(t, err)

	var got buildResultJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "localhost:5000/ray-vllm:2.40.0-vllm0.6.5-cpu", got.Image)
	assert.Equal(t, "rayproject/ray:2.40.0-py311-cpu", got.BaseImage)
	assert.True(t, got.DryRun)
	assert.False(t, got.Pushed)
	assert.Equal(t, "docker", got.Command[0])
	assert.Equal(t, ".", got.Command[len(got.Command)-1])
	assert.NotEmpty(t, got.Warnings, "missing Dockerfile is reported")
}

func TestBuildCommand_LintWarnings(t *testing.T) {
	setupCLI(t, nil)

	dockerfile := "ARG BASE_IMAGE\nFROM ubuntu:22.04\nRUN pip install vllm\n"
	require.NoError(t, os.WriteFile("Dockerfile.gpu", []byte(dockerfile), 0o644))

	_, stderr, err := executeCommand("build", "gpu", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stderr, "VLLM_VERSION is passed but never declared")
	assert.Contains(t, stderr, "ARG BASE_IMAGE is declared but no FROM instruction uses it")
}

func TestBuildCommand_RunsBuildTool(t *testing.T) {
	runner := setupCLI(t, nil)

	dockerfile := "ARG BASE_IMAGE\nFROM ${BASE_IMAGE}\nARG VLLM_VERSION\nRUN pip install vllm==${VLLM_VERSION}\n"
	require.NoError(t, os.WriteFile(filepath.Join(".", "Dockerfile.cpu"), []byte(dockerfile), 0o644))

	stdout, stderr, err := executeCommand("build", "cpu", "--no-push", "--ping", "--labels", "--", "--no-cache")
	require.NoError(t, err)
	assert.Empty(t, stderr, "clean Dockerfile produces no warnings")

	require.Len(t, runner.invocations, 1)
	inv := runner.invocations[0]
	assert.Equal(t, buildx.DefaultExecutable, inv.Executable)
	assert.Equal(t, []string{"buildx", "build"}, inv.Args[:2])
	assert.Contains(t, inv.Args, "--load")
	assert.Contains(t, inv.Args, "rayserve.managed-by=rayserve-image")
	assert.Equal(t, []string{"--no-cache", "."}, inv.Args[len(inv.Args)-2:])

	assert.Contains(t, stdout, "Built and loaded localhost:5000/ray-vllm:2.40.0-vllm0.6.5-cpu")
	assert.Contains(t, stdout, "Build ID:   0b7e5a52-6f0e-4c4b-9a1c-5d7e3f1a2b3c")
}

func TestBuildCommand_PingFailure(t *testing.T) {
	runner := setupCLI(t, nil)
	pingDaemon = func(context.Context) error {
		return model.NewCLIError(model.ExitDockerNotRunning, "Docker daemon is not running")
	}

	_, _, err := executeCommand("build", "gpu", "--ping")
	require.Error(t, err)
	assert.Equal(t, int(model.ExitDockerNotRunning), ReportError(io.Discard, err))
	assert.Empty(t, runner.invocations)
}

// TestBuildCommand_ExitStatusPassThrough verifies that the build tool's
// exit status becomes the process exit status.
func TestBuildCommand_ExitStatusPassThrough(t *testing.T) {
	runner := setupCLI(t, nil)
	runner.err = &model.BuildFailedError{Code: 17, Command: "docker buildx build", Err: errors.New("exit status 17")}

	stdout, _, err := executeCommand("build", "gpu")
	require.Error(t, err)
	assert.Empty(t, stdout)

	var stderr bytes.Buffer
	assert.Equal(t, 17, ReportError(&stderr, err))
	assert.Equal(t, "Error: build tool exited with status 17\n", stderr.String())
}

func TestParseLabelFlags(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", values: nil, want: nil},
		{name: "simple", values: []string{"a=1", "b=2"}, want: map[string]string{"a": "1", "b": "2"}},
		{name: "empty value", values: []string{"a="}, want: map[string]string{"a": ""}},
		{name: "value with equals", values: []string{"a=x=y"}, want: map[string]string{"a": "x=y"}},
		{name: "later wins", values: []string{"a=1", "a=2"}, want: map[string]string{"a": "2"}},
		{name: "missing equals", values: []string{"a"}, wantErr: true},
		{name: "empty key", values: []string{"=v"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLabelFlags(tt.values)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
