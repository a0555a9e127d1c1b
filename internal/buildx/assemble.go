package buildx

import (
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// DefaultExecutable is the build tool binary. buildx is invoked as a
// docker CLI plugin subcommand.
const DefaultExecutable = "docker"

// Build argument names consumed by Dockerfile.cpu and Dockerfile.gpu.
const (
	BuildArgBaseImage   = "BASE_IMAGE"
	BuildArgVLLMVersion = "VLLM_VERSION"
)

// BuildArgs returns the build-time substitution values passed to the
// Dockerfile, in the order they appear on the command line.
func BuildArgs(spec *model.BuildSpec) [][2]string {
	return [][2]string{
		{BuildArgBaseImage, spec.BaseImage()},
		{BuildArgVLLMVersion, spec.VLLMVersion},
	}
}

// Assemble builds the build tool invocation for spec. The argument order is
// fixed:
//
//	docker buildx build
//	  --platform <platform>
//	  --build-arg BASE_IMAGE=<repo>:<ray>-<python>-<variant>
//	  --build-arg VLLM_VERSION=<vllm>
//	  -t <registry>/<image>:<tag>
//	  -f <dockerfile-dir>/Dockerfile.<variant>
//	  [--label key=value ...]      (sorted by key)
//	  --push | --load
//	  [extra args ...]             (verbatim, in order)
//	  <context>
//
// Assemble does not validate spec; callers run spec.Validate first.
func Assemble(spec *model.BuildSpec) model.Invocation {
	args := make([]string, 0, 16+2*len(spec.Labels)+len(spec.ExtraArgs))
	args = append(args, "buildx", "build")
	args = append(args, "--platform", spec.Platform)

	for _, ba := range BuildArgs(spec) {
		args = append(args, "--build-arg", ba[0]+"="+ba[1])
	}

	args = append(args, "-t", spec.ImageRef())
	args = append(args, "-f", spec.DockerfilePath())

	for _, k := range spec.SortedLabelKeys() {
		args = append(args, "--label", k+"="+spec.Labels[k])
	}

	if spec.Push {
		args = append(args, "--push")
	} else {
		args = append(args, "--load")
	}

	args = append(args, spec.ExtraArgs...)
	args = append(args, spec.ContextDir)

	return model.Invocation{
		Executable: DefaultExecutable,
		Args:       args,
	}
}
