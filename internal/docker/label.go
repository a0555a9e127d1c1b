package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// Standard OCI annotation keys applied as image labels. See
// https://github.com/opencontainers/image-spec/blob/main/annotations.md
const (
	LabelOCITitle    = "org.opencontainers.image.title"
	LabelOCIVersion  = "org.opencontainers.image.version"
	LabelOCICreated  = "org.opencontainers.image.created"
	LabelOCIRevision = "org.opencontainers.image.revision"
	LabelOCIBaseName = "org.opencontainers.image.base.name"
)

// Tool-specific label keys. All share the "rayserve." prefix to avoid
// collisions with labels inherited from the Ray base image.
const (
	// LabelPrefix is the common prefix for all rayserve-image labels.
	LabelPrefix = "rayserve."

	// LabelManagedBy marks images built by this CLI. It is the filter key
	// used by ListBuiltImages.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRayVersion records the Ray runtime version of the base image.
	LabelRayVersion = LabelPrefix + "ray-version"

	// LabelVLLMVersion records the vLLM version installed in the image.
	LabelVLLMVersion = LabelPrefix + "vllm-version"

	// LabelVariant records "cpu" or "gpu".
	LabelVariant = LabelPrefix + "variant"

	// LabelBuildID records the unique ID assigned to the build invocation.
	LabelBuildID = LabelPrefix + "build-id"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "rayserve-image"

// BuildLabels returns the labels recorded on an image built from spec.
//
// revision is the git revision of the build context and is omitted when
// empty. buildID identifies this invocation. created is formatted as
// RFC 3339 in UTC.
//
// User-supplied spec.Labels are not included here; the caller merges them
// and user values win on key collisions.
func BuildLabels(spec *model.BuildSpec, revision, buildID string, created time.Time) map[string]string {
	labels := map[string]string{
		LabelManagedBy:   ManagedByValue,
		LabelRayVersion:  spec.RayVersion,
		LabelVLLMVersion: spec.VLLMVersion,
		LabelVariant:     spec.Variant.String(),
		LabelOCITitle:    spec.ImageName,
		LabelOCIVersion:  spec.ImageTag(),
		LabelOCICreated:  created.UTC().Format(time.RFC3339),
		LabelOCIBaseName: spec.BaseImage(),
	}
	if revision != "" {
		labels[LabelOCIRevision] = revision
	}
	if buildID != "" {
		labels[LabelBuildID] = buildID
	}
	return labels
}

// MergeLabels returns a new map holding the labels of base overlaid with
// those of override.
func MergeLabels(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// ParseLabels reconstructs the build parameters recorded on an image.
//
// The managed-by, ray-version, vllm-version and variant labels are
// required; the OCI labels and build ID are optional. The returned
// ImageInfo carries only label-derived fields; image metadata (ID,
// tags, size) is filled in by the caller.
func ParseLabels(labels map[string]string) (*model.ImageInfo, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelRayVersion,
		LabelVLLMVersion,
		LabelVariant,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required image labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	variant, err := model.ParseVariant(labels[LabelVariant])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelVariant, err)
	}

	info := &model.ImageInfo{
		RayVersion:  labels[LabelRayVersion],
		VLLMVersion: labels[LabelVLLMVersion],
		Variant:     variant,
		BaseImage:   labels[LabelOCIBaseName],
		Revision:    labels[LabelOCIRevision],
		BuildID:     labels[LabelBuildID],
		Labels:      labels,
	}

	if created, ok := labels[LabelOCICreated]; ok && created != "" {
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("invalid label %s: %w", LabelOCICreated, err)
		}
		info.Created = t
	}

	return info, nil
}

// FilterLabels returns the label filter matching images built by this CLI.
func FilterLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
	}
}
