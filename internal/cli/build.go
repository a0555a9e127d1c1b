// Package cli: build.go implements the "rayserve-image build" and
// "rayserve-image print" commands.
//
// Orchestration steps:
//  1. Parse the variant argument (cpu or gpu)
//  2. Resolve the BuildSpec: defaults, config file, REGISTRY, flags
//  3. Describe the git revision of the build context
//  4. With --labels, attach OCI and rayserve.* labels with a fresh build ID
//  5. Lint the variant's Dockerfile (advisory only)
//  6. Assemble the docker buildx invocation
//  7. Run it (or print it for --dry-run / print)
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shinji-kodama/rayserve-image/internal/buildx"
	"github.com/shinji-kodama/rayserve-image/internal/config"
	"github.com/shinji-kodama/rayserve-image/internal/docker"
	"github.com/shinji-kodama/rayserve-image/internal/dockerfile"
	"github.com/shinji-kodama/rayserve-image/internal/gitrev"
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// buildFlags holds the flag values shared by build and print. Only flags
// the user actually set are turned into overrides (see overlay).
type buildFlags struct {
	rayVersion    string   // --ray-version
	vllmVersion   string   // --vllm-version
	pythonVersion string   // --python-version
	baseImageRepo string   // --base-image-repo
	registry      string   // --registry
	imageName     string   // --image
	tag           string   // --tag
	platform      string   // --platform
	dockerfileDir string   // --dockerfile-dir
	contextDir    string   // --context
	labelValues   []string // --label key=value (repeatable)
	noPush        bool     // --no-push: --load instead of --push
	withLabels    bool     // --labels: add the generated metadata labels
	dryRun        bool     // --dry-run: print instead of running
	ping          bool     // --ping: check the daemon before building
}

// Package-level hooks replaced in tests.
var (
	// newRunner returns the runner used to execute the build invocation.
	newRunner = func(dryRun bool, out io.Writer) buildx.Runner {
		if dryRun {
			return &buildx.DryRunner{Out: out}
		}
		return buildx.NewExecRunner(logger)
	}

	// now is the clock used for the created label.
	now = time.Now

	// newBuildID returns the identifier recorded in the build-id label.
	newBuildID = uuid.NewString

	// lookupEnv reads the environment layer.
	lookupEnv config.LookupFunc = os.LookupEnv

	// pingDaemon verifies the Docker daemon is reachable.
	pingDaemon = func(ctx context.Context) error {
		c, err := docker.NewClient()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		return c.Ping(ctx)
	}
)

// NewBuildCommand creates the "build" cobra command.
func NewBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build <cpu|gpu> [-- extra buildx args...]",
		Short: "Build the image with docker buildx and push it",
		Long: `Build the Ray Serve + vLLM image for the CPU or GPU variant and push it.

The command runs:

  docker buildx build --platform <platform> \
    --build-arg BASE_IMAGE=<ray base image> --build-arg VLLM_VERSION=<vllm> \
    -t <registry>/<image>:<tag> -f <dir>/Dockerfile.<variant> --push \
    [extra args...] <context>

Arguments after the variant (use "--" before any that start with a dash)
are passed through to docker buildx unchanged. If the build fails, this
command exits with the status docker returned.

--labels adds OCI and rayserve.* labels (including the build time and a
unique build ID) so that list, inspect and remove can find the image. They
are off by default so the command line is the same on every run.

Examples:
  rayserve-image build gpu
  REGISTRY=ghcr.io/acme rayserve-image build cpu
  rayserve-image build gpu --vllm-version 0.7.0 -- --no-cache --progress=plain
  rayserve-image build gpu --labels
  rayserve-image build gpu --no-push --dry-run`,

		Args: cobra.MinimumNArgs(1),

		ValidArgs: []string{string(model.VariantCPU), string(model.VariantGPU)},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), cmd.Flags(), args, flags, cmd.OutOrStdout(), flags.dryRun)
		},
	}

	registerBuildFlags(cmd.Flags(), flags)
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the docker command instead of running it")
	cmd.Flags().BoolVar(&flags.ping, "ping", false, "Check that the Docker daemon is reachable before building")

	return cmd
}

// NewPrintCommand creates the "print" cobra command. It resolves the build
// exactly like "build" and prints the command line without running it.
func NewPrintCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "print <cpu|gpu> [-- extra buildx args...]",
		Short: "Print the docker buildx command a build would run",
		Args:  cobra.MinimumNArgs(1),

		ValidArgs: []string{string(model.VariantCPU), string(model.VariantGPU)},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), cmd.Flags(), args, flags, cmd.OutOrStdout(), true)
		},
	}

	registerBuildFlags(cmd.Flags(), flags)
	return cmd
}

// registerSpecFlags binds the flags that change the resolved image
// settings. They are shared by build, print and versions.
func registerSpecFlags(fs *pflag.FlagSet, f *buildFlags) {
	fs.StringVar(&f.rayVersion, "ray-version", config.DefaultRayVersion, "Ray version of the base image")
	fs.StringVar(&f.vllmVersion, "vllm-version", config.DefaultVLLMVersion, "vLLM version to install")
	fs.StringVar(&f.pythonVersion, "python-version", config.DefaultPythonVersion, "Python tag segment of the Ray image")
	fs.StringVar(&f.baseImageRepo, "base-image-repo", config.DefaultBaseImageRepo, "Repository of the Ray base image")
	fs.StringVar(&f.registry, "registry", config.DefaultRegistry, "Registry to push to (overrides $"+config.RegistryEnvVar+")")
	fs.StringVar(&f.imageName, "image", config.DefaultImageName, "Image repository name")
	fs.StringVar(&f.tag, "tag", "", "Image tag (default: <ray>-vllm<vllm>-<variant>)")
	fs.StringVar(&f.platform, "platform", config.DefaultPlatform, "Target platform")
	fs.StringVar(&f.dockerfileDir, "dockerfile-dir", ".", "Directory containing Dockerfile.cpu and Dockerfile.gpu")
}

// registerBuildFlags binds the flags shared by build and print.
func registerBuildFlags(fs *pflag.FlagSet, f *buildFlags) {
	registerSpecFlags(fs, f)
	fs.StringVar(&f.contextDir, "context", ".", "Build context directory")
	fs.StringArrayVar(&f.labelValues, "label", nil, "Extra image label key=value (repeatable)")
	fs.BoolVar(&f.noPush, "no-push", false, "Load the image into the local daemon instead of pushing")
	fs.BoolVar(&f.withLabels, "labels", false, "Add OCI/rayserve labels (build time, git revision, build ID)")
}

// overlay converts the flags the user explicitly set into a config layer.
// Unchanged flags stay nil so that config file and environment values
// are not overwritten by flag defaults. Flags not registered on fs count
// as unset.
func (f *buildFlags) overlay(fs *pflag.FlagSet, extraArgs []string) (*config.Overlay, error) {
	o := &config.Overlay{ExtraArgs: extraArgs}

	set := func(name string, value string, dst **string) {
		if fs.Changed(name) {
			v := value
			*dst = &v
		}
	}
	set("ray-version", f.rayVersion, &o.RayVersion)
	set("vllm-version", f.vllmVersion, &o.VLLMVersion)
	set("python-version", f.pythonVersion, &o.PythonVersion)
	set("base-image-repo", f.baseImageRepo, &o.BaseImageRepo)
	set("registry", f.registry, &o.Registry)
	set("image", f.imageName, &o.ImageName)
	set("tag", f.tag, &o.Tag)
	set("platform", f.platform, &o.Platform)
	set("dockerfile-dir", f.dockerfileDir, &o.DockerfileDir)
	set("context", f.contextDir, &o.ContextDir)

	if fs.Changed("no-push") {
		push := !f.noPush
		o.Push = &push
	}

	labels, err := parseLabelFlags(f.labelValues)
	if err != nil {
		return nil, err
	}
	o.Labels = labels

	return o, nil
}

// parseLabelFlags parses repeated "key=value" strings. The value may be
// empty and may itself contain "=".
func parseLabelFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(values))
	for _, kv := range values {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, model.NewCLIError(model.ExitInvalidInput,
				fmt.Sprintf("invalid --label %q: expected key=value", kv))
		}
		labels[k] = v
	}
	return labels, nil
}

// loadConfigFile returns the config file layer: the --config file if
// given, otherwise a discovered file in the working directory, otherwise nil.
func loadConfigFile() (*config.Overlay, string, error) {
	path := configPath
	if path == "" {
		found, ok := config.Discover(".")
		if !ok {
			return nil, "", nil
		}
		path = found
	}
	overlay, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return overlay, path, nil
}

// buildPlan is everything decided before the build tool is started.
type buildPlan struct {
	Spec       *model.BuildSpec
	Invocation model.Invocation
	Revision   gitrev.Revision
	BuildID    string
	ConfigFile string
	Warnings   []string
}

// planBuild resolves the BuildSpec for variant and assembles the invocation.
func planBuild(ctx context.Context, variant model.Variant, flagLayer *config.Overlay, withLabels bool) (*buildPlan, error) {
	fileLayer, file, err := loadConfigFile()
	if err != nil {
		return nil, err
	}
	if file != "" {
		VerboseLog("Using config file %s", file)
	}

	spec, warnings, err := config.Resolve(variant, fileLayer, config.FromEnv(lookupEnv), flagLayer)
	if err != nil {
		return nil, err
	}

	for k := range spec.Labels {
		if strings.HasPrefix(k, docker.LabelPrefix) {
			return nil, model.NewCLIError(model.ExitInvalidInput,
				fmt.Sprintf("label %q uses the reserved %q prefix", k, docker.LabelPrefix))
		}
	}

	plan := &buildPlan{Spec: spec, ConfigFile: file, Warnings: warnings}

	if withLabels {
		rev, err := gitrev.Describe(ctx, spec.ContextDir)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to read git revision", err)
		}
		plan.Revision = rev
		plan.BuildID = newBuildID()

		generated := docker.BuildLabels(spec, rev.String(), plan.BuildID, now())
		// User-supplied labels win on key collisions. They cannot touch
		// rayserve.* keys, so the managed-by label always survives.
		spec.Labels = docker.MergeLabels(generated, spec.Labels)
	}

	dockerfilePath := dockerfile.Resolve(spec.DockerfileDir, spec.Variant)
	buildArgNames := make([]string, 0, 2)
	for _, ba := range buildx.BuildArgs(spec) {
		buildArgNames = append(buildArgNames, ba[0])
	}
	for _, f := range dockerfile.Lint(dockerfilePath, buildArgNames, buildx.BuildArgBaseImage) {
		plan.Warnings = append(plan.Warnings, f.String())
	}

	plan.Invocation = buildx.Assemble(spec)
	return plan, nil
}

// runBuild is the shared implementation of build and print.
func runBuild(ctx context.Context, fs *pflag.FlagSet, args []string, f *buildFlags, out io.Writer, dryRun bool) error {
	variant, err := model.ParseVariant(args[0])
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "invalid variant argument", err)
	}

	flagLayer, err := f.overlay(fs, args[1:])
	if err != nil {
		return err
	}

	plan, err := planBuild(ctx, variant, flagLayer, f.withLabels)
	if err != nil {
		return err
	}
	for _, w := range plan.Warnings {
		warn(w)
	}

	log := logger.With(zap.String("variant", variant.String()), zap.String("image", plan.Spec.ImageRef()))
	if plan.BuildID != "" {
		log = log.With(zap.String("buildID", plan.BuildID))
	}
	log.Debug("build planned",
		zap.String("baseImage", plan.Spec.BaseImage()),
		zap.String("revision", plan.Revision.String()),
		zap.Strings("argv", plan.Invocation.Argv()))

	if dryRun {
		if IsJSONOutput() {
			return writeJSON(out, newBuildResultJSON(plan, true))
		}
		return newRunner(true, out).Run(ctx, plan.Invocation)
	}

	if f.ping {
		if err := pingDaemon(ctx); err != nil {
			return err
		}
		log.Debug("docker daemon reachable")
	}

	start := now()
	if err := newRunner(false, out).Run(ctx, plan.Invocation); err != nil {
		return err
	}
	log.Debug("build complete", zap.Duration("elapsed", now().Sub(start)))

	if IsJSONOutput() {
		return writeJSON(out, newBuildResultJSON(plan, false))
	}
	printBuildResultText(out, plan)
	return nil
}

// buildResultJSON is the JSON output structure for build and print.
type buildResultJSON struct {
	Image       string   `json:"image"`
	Variant     string   `json:"variant"`
	RayVersion  string   `json:"rayVersion"`
	VLLMVersion string   `json:"vllmVersion"`
	BaseImage   string   `json:"baseImage"`
	Platform    string   `json:"platform"`
	Pushed      bool     `json:"pushed"`
	DryRun      bool     `json:"dryRun"`
	BuildID     string   `json:"buildId,omitempty"`
	Revision    string   `json:"revision,omitempty"`
	ConfigFile  string   `json:"configFile,omitempty"`
	Command     []string `json:"command"`
	Warnings    []string `json:"warnings"`
}

func newBuildResultJSON(plan *buildPlan, dryRun bool) buildResultJSON {
	warnings := plan.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return buildResultJSON{
		Image:       plan.Spec.ImageRef(),
		Variant:     plan.Spec.Variant.String(),
		RayVersion:  plan.Spec.RayVersion,
		VLLMVersion: plan.Spec.VLLMVersion,
		BaseImage:   plan.Spec.BaseImage(),
		Platform:    plan.Spec.Platform,
		Pushed:      plan.Spec.Push && !dryRun,
		DryRun:      dryRun,
		BuildID:     plan.BuildID,
		Revision:    plan.Revision.String(),
		ConfigFile:  plan.ConfigFile,
		Command:     plan.Invocation.Argv(),
		Warnings:    warnings,
	}
}

// printBuildResultText prints a short human-readable summary after a
// successful build.
func printBuildResultText(out io.Writer, plan *buildPlan) {
	action := "Built and pushed"
	if !plan.Spec.Push {
		action = "Built and loaded"
	}
	color.New(color.FgGreen, color.Bold).Fprintf(out, "%s %s\n", action, plan.Spec.ImageRef())
	fmt.Fprintf(out, "  Ray:        %s\n", plan.Spec.RayVersion)
	fmt.Fprintf(out, "  vLLM:       %s\n", plan.Spec.VLLMVersion)
	fmt.Fprintf(out, "  Base image: %s\n", plan.Spec.BaseImage())
	fmt.Fprintf(out, "  Platform:   %s\n", plan.Spec.Platform)
	if rev := plan.Revision.Short(); rev != "" {
		fmt.Fprintf(out, "  Revision:   %s\n", rev)
	}
	if plan.BuildID != "" {
		fmt.Fprintf(out, "  Build ID:   %s\n", plan.BuildID)
	}
}
