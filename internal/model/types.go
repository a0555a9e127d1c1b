// Package model defines the domain types for the rayserve-image CLI.
//
// All entities in this package are transient: a BuildSpec lives for one
// command execution, and ImageInfo values are reconstructed from Docker
// image labels at runtime.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Variant selects the hardware flavour of the image. Each variant maps to
// its own Dockerfile and its own Ray base image.
type Variant string

const (
	// VariantCPU builds from Dockerfile.cpu on top of the CPU Ray image.
	VariantCPU Variant = "cpu"

	// VariantGPU builds from Dockerfile.gpu on top of the CUDA Ray image.
	VariantGPU Variant = "gpu"
)

// String returns the string representation of Variant.
func (v Variant) String() string {
	return string(v)
}

// IsValid reports whether the variant is one of the defined values.
func (v Variant) IsValid() bool {
	switch v {
	case VariantCPU, VariantGPU:
		return true
	default:
		return false
	}
}

// Dockerfile returns the Dockerfile file name for this variant, e.g.
// "Dockerfile.gpu". The caller joins it with the Dockerfile directory.
func (v Variant) Dockerfile() string {
	return "Dockerfile." + string(v)
}

// BaseImageSuffix returns the suffix Ray uses on its published image tags
// for this variant ("-cpu" or "-gpu").
func (v Variant) BaseImageSuffix() string {
	return "-" + string(v)
}

// ParseVariant converts a string to a Variant. The comparison is
// case-insensitive so "GPU" and "gpu" are treated the same.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if !v.IsValid() {
		return "", fmt.Errorf("invalid variant %q: must be %q or %q", s, VariantCPU, VariantGPU)
	}
	return v, nil
}

// Variants returns all defined variants in display order.
func Variants() []Variant {
	return []Variant{VariantCPU, VariantGPU}
}

// BuildSpec holds every value that is interpolated into a single
// `docker buildx build` invocation.
//
// The zero value is not usable; callers obtain a populated spec from
// config.Defaults() and then apply overrides.
type BuildSpec struct {
	// RayVersion is the Ray runtime version of the base image (e.g. "2.40.0").
	RayVersion string `json:"rayVersion" yaml:"rayVersion"`

	// VLLMVersion is the vLLM inference-server version installed on top of
	// the base image. Passed to the Dockerfile as the VLLM_VERSION build arg.
	VLLMVersion string `json:"vllmVersion" yaml:"vllmVersion"`

	// PythonVersion is the Python tag segment of the Ray image tag (e.g. "py311").
	PythonVersion string `json:"pythonVersion" yaml:"pythonVersion"`

	// BaseImageRepo is the repository the Ray base image is pulled from.
	BaseImageRepo string `json:"baseImageRepo" yaml:"baseImageRepo"`

	// Registry is the registry host (optionally with a namespace) the result
	// is pushed to. An empty Registry yields an unqualified image reference.
	Registry string `json:"registry" yaml:"registry"`

	// ImageName is the repository name of the produced image.
	ImageName string `json:"imageName" yaml:"imageName"`

	// Tag overrides the derived image tag when non-empty.
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`

	// Platform is the target platform identifier (e.g. "linux/amd64").
	Platform string `json:"platform" yaml:"platform"`

	// Variant selects the CPU or GPU Dockerfile.
	Variant Variant `json:"variant" yaml:"variant"`

	// DockerfileDir is the directory containing Dockerfile.cpu and Dockerfile.gpu.
	DockerfileDir string `json:"dockerfileDir" yaml:"dockerfileDir"`

	// ContextDir is the build context passed as the final positional argument.
	ContextDir string `json:"contextDir" yaml:"contextDir"`

	// Push selects --push (true) or --load (false).
	Push bool `json:"push" yaml:"push"`

	// ExtraArgs are passed through to the build tool verbatim, in order.
	ExtraArgs []string `json:"extraArgs,omitempty" yaml:"extraArgs,omitempty"`

	// Labels are additional image labels applied with --label.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// BaseImage returns the fully qualified Ray base image reference, e.g.
// "rayproject/ray:2.40.0-py311-gpu".
func (s *BuildSpec) BaseImage() string {
	return fmt.Sprintf("%s:%s-%s%s",
		s.BaseImageRepo, s.RayVersion, s.PythonVersion, s.Variant.BaseImageSuffix())
}

// ImageTag returns the tag of the produced image. An explicit Tag wins;
// otherwise the tag is derived as "<ray>-vllm<vllm>-<variant>".
func (s *BuildSpec) ImageTag() string {
	if s.Tag != "" {
		return s.Tag
	}
	return fmt.Sprintf("%s-vllm%s-%s", s.RayVersion, s.VLLMVersion, s.Variant)
}

// ImageRef returns the registry-qualified reference the image is tagged
// and pushed as, e.g. "localhost:5000/ray-vllm:2.40.0-vllm0.6.5-gpu".
func (s *BuildSpec) ImageRef() string {
	repo := s.ImageName
	if s.Registry != "" {
		repo = strings.TrimSuffix(s.Registry, "/") + "/" + s.ImageName
	}
	return repo + ":" + s.ImageTag()
}

// DockerfilePath returns the path of the variant's Dockerfile relative to
// the working directory of the build tool.
func (s *BuildSpec) DockerfilePath() string {
	if s.DockerfileDir == "" || s.DockerfileDir == "." {
		return s.Variant.Dockerfile()
	}
	return strings.TrimSuffix(s.DockerfileDir, "/") + "/" + s.Variant.Dockerfile()
}

// SortedLabelKeys returns the keys of Labels in lexical order.
func (s *BuildSpec) SortedLabelKeys() []string {
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every value interpolated into the command line is a
// non-empty string and that the variant is known. Registry is allowed to be
// empty (the image is then tagged without a registry prefix).
func (s *BuildSpec) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"ray version", s.RayVersion},
		{"vllm version", s.VLLMVersion},
		{"python version", s.PythonVersion},
		{"base image repository", s.BaseImageRepo},
		{"image name", s.ImageName},
		{"platform", s.Platform},
		{"context directory", s.ContextDir},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return NewCLIError(ExitInvalidInput,
			fmt.Sprintf("build configuration is incomplete: empty %s", strings.Join(missing, ", ")))
	}

	if !s.Variant.IsValid() {
		return NewCLIError(ExitInvalidInput,
			fmt.Sprintf("invalid variant %q: must be %q or %q", s.Variant, VariantCPU, VariantGPU))
	}

	for k := range s.Labels {
		if k == "" {
			return NewCLIError(ExitInvalidInput, "image label keys must not be empty")
		}
	}
	return nil
}

// ImageInfo describes an image built by this tool as reported by the
// Docker daemon. The build parameters are recovered from image labels.
type ImageInfo struct {
	// ID is the image ID (content-addressable "sha256:..." digest).
	ID string

	// RepoTags are the local tags pointing at this image.
	RepoTags []string

	// RepoDigests are the registry digests, populated after a push or pull.
	RepoDigests []string

	// Created is the image creation time.
	Created time.Time

	// Size is the image size in bytes.
	Size int64

	// RayVersion, VLLMVersion and Variant are read back from labels.
	RayVersion  string
	VLLMVersion string
	Variant     Variant

	// BaseImage is the base image the build started from.
	BaseImage string

	// Revision is the git commit of the build context, if it was known.
	Revision string

	// BuildID is the unique identifier assigned to the build invocation.
	BuildID string

	// Labels holds all labels of the image, including ones not managed here.
	Labels map[string]string
}

// PrimaryTag returns the first repo tag, or "<none>" when the image is
// untagged (dangling).
func (i *ImageInfo) PrimaryTag() string {
	if len(i.RepoTags) == 0 {
		return "<none>"
	}
	return i.RepoTags[0]
}

// ShortID returns the first 12 hex characters of the image ID, matching the
// format `docker images` prints.
func (i *ImageInfo) ShortID() string {
	id := strings.TrimPrefix(i.ID, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// ExitCode defines the CLI exit codes. Codes of a failed build tool run are
// passed through unchanged (see BuildFailedError), so scripts wrapping this
// CLI observe the same status they would from the build tool itself.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidInput indicates a missing or malformed argument or
	// configuration value.
	ExitInvalidInput ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitImageNotFound indicates the referenced image does not exist locally.
	ExitImageNotFound ExitCode = 4

	// ExitConfigError indicates the configuration file could not be read
	// or parsed.
	ExitConfigError ExitCode = 5

	// ExitUserCancelled indicates the user cancelled an interactive prompt.
	ExitUserCancelled ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// BuildFailedError reports that the external build tool exited with a
// non-zero status. Code is the child's exit status verbatim; the build
// tool has already printed its own diagnostics.
type BuildFailedError struct {
	// Code is the exit status of the build tool process.
	Code int

	// Command is the rendered command line that failed.
	Command string

	// Err is the underlying *exec.ExitError or start failure.
	Err error
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build tool exited with status %d", e.Code)
}

func (e *BuildFailedError) Unwrap() error {
	return e.Err
}
