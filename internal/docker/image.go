// image.go implements read and cleanup operations on images built by this
// CLI. Images are discovered through the "rayserve.managed-by" label, so
// unrelated images on the same host are never touched.
package docker

import (
	"context"
	"fmt"
	"sort"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"

	"github.com/shinji-kodama/rayserve-image/internal/config"
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// ListBuiltImages returns every local image carrying the managed-by label,
// newest Ray version first, then newest vLLM version, then by variant.
//
// Images whose labels cannot be parsed are skipped and reported through
// the returned skipped slice as "<id>: <reason>", so one malformed image
// does not hide the rest.
func ListBuiltImages(ctx context.Context, c *Client) (images []model.ImageInfo, skipped []string, err error) {
	filterArgs := filters.NewArgs()
	for k, v := range FilterLabels() {
		filterArgs.Add("label", k+"="+v)
	}

	summaries, err := c.api.ImageList(ctx, image.ListOptions{
		Filters: filterArgs,
	})
	if err != nil {
		return nil, nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker images",
			err,
		)
	}

	images = make([]model.ImageInfo, 0, len(summaries))
	for _, s := range summaries {
		info, err := summaryToInfo(s)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", s.ID, err))
			continue
		}
		images = append(images, *info)
	}

	SortImages(images)
	return images, skipped, nil
}

// SortImages orders images by Ray version, then vLLM version (both
// descending, semver-aware), then variant and ID ascending.
func SortImages(images []model.ImageInfo) {
	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		if c := config.CompareVersions(a.RayVersion, b.RayVersion); c != 0 {
			return c > 0
		}
		if c := config.CompareVersions(a.VLLMVersion, b.VLLMVersion); c != 0 {
			return c > 0
		}
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		return a.ID < b.ID
	})
}

// summaryToInfo converts an image list entry into an ImageInfo. The
// daemon reports Created as Unix seconds; the label value, when present,
// takes precedence because it reflects the build start time.
func summaryToInfo(s image.Summary) (*model.ImageInfo, error) {
	info, err := ParseLabels(s.Labels)
	if err != nil {
		return nil, err
	}
	info.ID = s.ID
	info.RepoTags = s.RepoTags
	info.RepoDigests = s.RepoDigests
	info.Size = s.Size
	if info.Created.IsZero() && s.Created > 0 {
		info.Created = time.Unix(s.Created, 0).UTC()
	}
	return info, nil
}

// InspectImage looks up a single image by reference (name:tag, ID or
// digest) and returns its build parameters.
//
// Returns a CLIError with ExitImageNotFound when the image does not
// exist, and ExitInvalidInput when it exists but was not built by this CLI.
func InspectImage(ctx context.Context, c *Client, ref string) (*model.ImageInfo, error) {
	resp, err := c.api.ImageInspect(ctx, ref)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, model.WrapCLIError(
				model.ExitImageNotFound,
				fmt.Sprintf("image %q not found", ref),
				err,
			)
		}
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect image %q", ref),
			err,
		)
	}
	return inspectToInfo(ref, resp)
}

// inspectToInfo converts an inspect response into an ImageInfo.
func inspectToInfo(ref string, resp image.InspectResponse) (*model.ImageInfo, error) {
	var labels map[string]string
	if resp.Config != nil {
		labels = resp.Config.Labels
	}

	info, err := ParseLabels(labels)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitInvalidInput,
			fmt.Sprintf("image %q was not built by rayserve-image", ref),
			err,
		)
	}

	info.ID = resp.ID
	info.RepoTags = resp.RepoTags
	info.RepoDigests = resp.RepoDigests
	info.Size = resp.Size
	if info.Created.IsZero() && resp.Created != "" {
		if t, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
			info.Created = t.UTC()
		}
	}
	return info, nil
}

// RemoveImage removes an image built by this CLI. The image is inspected
// first so that images from other sources are refused. When force is true
// the image is removed even if tagged in multiple repositories.
//
// Returns the untagged and deleted references reported by the daemon.
func RemoveImage(ctx context.Context, c *Client, ref string, force bool) ([]string, error) {
	if _, err := InspectImage(ctx, c, ref); err != nil {
		return nil, err
	}
	return RemoveInspectedImage(ctx, c, ref, force)
}

// RemoveInspectedImage removes ref without inspecting it. Callers must
// already have confirmed through InspectImage that ref is a managed image.
func RemoveInspectedImage(ctx context.Context, c *Client, ref string, force bool) ([]string, error) {
	resp, err := c.api.ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, model.WrapCLIError(
				model.ExitImageNotFound,
				fmt.Sprintf("image %q not found", ref),
				err,
			)
		}
		return nil, model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to remove image %q", ref),
			err,
		)
	}

	removed := make([]string, 0, len(resp))
	for _, r := range resp {
		if r.Untagged != "" {
			removed = append(removed, "untagged: "+r.Untagged)
		}
		if r.Deleted != "" {
			removed = append(removed, "deleted: "+r.Deleted)
		}
	}
	return removed, nil
}
