// Package config resolves the BuildSpec for a single build from layered
// sources.
//
// Precedence, lowest to highest:
//  1. Hardcoded defaults (Defaults)
//  2. An optional config file, YAML or JSONC (Load / Discover)
//  3. The environment (REGISTRY)
//  4. Command-line flags
//
// Every layer except the defaults is an Overlay whose nil fields mean
// "not set", so a layer can never accidentally clear a lower one.
package config

import (
	"fmt"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// Hardcoded build parameters. These are the pinned versions the image is
// built with unless a config file, the environment, or a flag says otherwise.
const (
	DefaultRayVersion    = "2.40.0"
	DefaultVLLMVersion   = "0.6.5"
	DefaultPythonVersion = "py311"
	DefaultBaseImageRepo = "rayproject/ray"
	DefaultImageName     = "ray-vllm"
	DefaultPlatform      = "linux/amd64"
	DefaultRegistry      = "localhost:5000"
)

// RegistryEnvVar overrides the registry host when set in the environment.
const RegistryEnvVar = "REGISTRY"

// Defaults returns a new BuildSpec populated with the hardcoded defaults
// for the given variant.
func Defaults(variant model.Variant) *model.BuildSpec {
	return &model.BuildSpec{
		RayVersion:    DefaultRayVersion,
		VLLMVersion:   DefaultVLLMVersion,
		PythonVersion: DefaultPythonVersion,
		BaseImageRepo: DefaultBaseImageRepo,
		Registry:      DefaultRegistry,
		ImageName:     DefaultImageName,
		Platform:      DefaultPlatform,
		Variant:       variant,
		DockerfileDir: ".",
		ContextDir:    ".",
		Push:          true,
	}
}

// Overlay is a partial BuildSpec. Nil pointer fields are unset and leave
// the underlying value untouched when applied.
type Overlay struct {
	RayVersion    *string           `json:"rayVersion,omitempty" yaml:"rayVersion,omitempty"`
	VLLMVersion   *string           `json:"vllmVersion,omitempty" yaml:"vllmVersion,omitempty"`
	PythonVersion *string           `json:"pythonVersion,omitempty" yaml:"pythonVersion,omitempty"`
	BaseImageRepo *string           `json:"baseImageRepo,omitempty" yaml:"baseImageRepo,omitempty"`
	Registry      *string           `json:"registry,omitempty" yaml:"registry,omitempty"`
	ImageName     *string           `json:"imageName,omitempty" yaml:"imageName,omitempty"`
	Tag           *string           `json:"tag,omitempty" yaml:"tag,omitempty"`
	Platform      *string           `json:"platform,omitempty" yaml:"platform,omitempty"`
	DockerfileDir *string           `json:"dockerfileDir,omitempty" yaml:"dockerfileDir,omitempty"`
	ContextDir    *string           `json:"contextDir,omitempty" yaml:"contextDir,omitempty"`
	Push          *bool             `json:"push,omitempty" yaml:"push,omitempty"`
	ExtraArgs     []string          `json:"extraArgs,omitempty" yaml:"extraArgs,omitempty"`
	Labels        map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Apply writes every set field of the overlay onto spec. ExtraArgs are
// appended after any already present, and Labels are merged key by key.
func (o *Overlay) Apply(spec *model.BuildSpec) {
	if o == nil {
		return
	}
	setString(&spec.RayVersion, o.RayVersion)
	setString(&spec.VLLMVersion, o.VLLMVersion)
	setString(&spec.PythonVersion, o.PythonVersion)
	setString(&spec.BaseImageRepo, o.BaseImageRepo)
	setString(&spec.Registry, o.Registry)
	setString(&spec.ImageName, o.ImageName)
	setString(&spec.Tag, o.Tag)
	setString(&spec.Platform, o.Platform)
	setString(&spec.DockerfileDir, o.DockerfileDir)
	setString(&spec.ContextDir, o.ContextDir)
	if o.Push != nil {
		spec.Push = *o.Push
	}
	spec.ExtraArgs = append(spec.ExtraArgs, o.ExtraArgs...)
	if len(o.Labels) > 0 {
		if spec.Labels == nil {
			spec.Labels = make(map[string]string, len(o.Labels))
		}
		for k, v := range o.Labels {
			spec.Labels[k] = v
		}
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// FromEnv builds the environment layer. Only the registry can be set from
// the environment; an empty REGISTRY counts as unset so the fixed default
// still applies.
func FromEnv(lookup LookupFunc) *Overlay {
	if lookup == nil {
		return nil
	}
	if v, ok := lookup(RegistryEnvVar); ok && v != "" {
		return &Overlay{Registry: &v}
	}
	return nil
}

// Resolve produces the final BuildSpec for variant by applying file, env
// and flags (each may be nil) on top of the defaults. It returns
// non-fatal warnings alongside the BuildSpec, e.g. a version that is not
// semantic-versioned. The returned spec has passed Validate.
func Resolve(variant model.Variant, file, env, flags *Overlay) (*model.BuildSpec, []string, error) {
	spec := Defaults(variant)
	for _, layer := range []*Overlay{file, env, flags} {
		layer.Apply(spec)
	}

	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}

	var warnings []string
	for _, v := range []struct {
		name  string
		value string
	}{
		{"ray version", spec.RayVersion},
		{"vllm version", spec.VLLMVersion},
	} {
		if w := CheckVersion(v.name, v.value); w != "" {
			warnings = append(warnings, w)
		}
	}
	if !strings.HasPrefix(spec.PythonVersion, "py") {
		warnings = append(warnings,
			fmt.Sprintf("python version %q does not look like a Ray image tag segment (e.g. %q)",
				spec.PythonVersion, DefaultPythonVersion))
	}

	return spec, warnings, nil
}

// CheckVersion returns a warning message when value is not a strict
// semantic version, or "" when it is. Non-semver values such as "nightly"
// are still usable as tags, so this never fails the build.
func CheckVersion(name, value string) string {
	if _, err := semver.Parse(value); err != nil {
		return fmt.Sprintf("%s %q is not a semantic version: %v", name, value, err)
	}
	return ""
}

// CompareVersions orders two version strings. Semantic versions compare
// by precedence; anything that fails to parse sorts after every valid
// version and then lexically.
func CompareVersions(a, b string) int {
	va, errA := semver.Parse(a)
	vb, errB := semver.Parse(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
