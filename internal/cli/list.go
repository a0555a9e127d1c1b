// Package cli: list.go implements the "rayserve-image list" command.
//
// The list command queries the local Docker daemon for images carrying
// the "rayserve.managed-by=rayserve-image" label, newest Ray/vLLM version
// first, and prints them as a text table or JSON array.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rayserve-image/internal/docker"
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// variant restricts the output to one variant when non-empty.
	variant string
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List images built by rayserve-image",
		Long: `List the images in the local Docker daemon that were built by rayserve-image.

Images are identified by their rayserve.* labels, so only images built
with --labels are shown.

Examples:
  rayserve-image list
  rayserve-image list --variant gpu --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.variant, "variant", "", "Only show images of this variant (cpu or gpu)")

	return cmd
}

func runList(ctx context.Context, out io.Writer, flags *listFlags) error {
	var only model.Variant
	if flags.variant != "" {
		v, err := model.ParseVariant(flags.variant)
		if err != nil {
			return model.WrapCLIError(model.ExitInvalidInput, "invalid --variant value", err)
		}
		only = v
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	images, skipped, err := docker.ListBuiltImages(ctx, cli)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		VerboseLog("Skipping image: %s", s)
	}

	images = filterImagesByVariant(images, only)

	if IsJSONOutput() {
		return writeJSON(out, imagesToJSON(images))
	}
	printImagesText(out, images)
	return nil
}

// filterImagesByVariant returns the images of variant v, or all images
// when v is empty.
func filterImagesByVariant(images []model.ImageInfo, v model.Variant) []model.ImageInfo {
	if v == "" {
		return images
	}
	filtered := make([]model.ImageInfo, 0, len(images))
	for _, img := range images {
		if img.Variant == v {
			filtered = append(filtered, img)
		}
	}
	return filtered
}

// imageJSON is the JSON output structure for one image in list and inspect.
type imageJSON struct {
	ID          string            `json:"id"`
	Tags        []string          `json:"tags"`
	Digests     []string          `json:"digests,omitempty"`
	Created     string            `json:"created,omitempty"`
	Size        int64             `json:"size"`
	Variant     string            `json:"variant"`
	RayVersion  string            `json:"rayVersion"`
	VLLMVersion string            `json:"vllmVersion"`
	BaseImage   string            `json:"baseImage,omitempty"`
	Revision    string            `json:"revision,omitempty"`
	BuildID     string            `json:"buildId,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

func imageToJSON(img model.ImageInfo, withLabels bool) imageJSON {
	tags := img.RepoTags
	if tags == nil {
		tags = []string{}
	}
	j := imageJSON{
		ID:          img.ID,
		Tags:        tags,
		Digests:     img.RepoDigests,
		Size:        img.Size,
		Variant:     img.Variant.String(),
		RayVersion:  img.RayVersion,
		VLLMVersion: img.VLLMVersion,
		BaseImage:   img.BaseImage,
		Revision:    img.Revision,
		BuildID:     img.BuildID,
	}
	if !img.Created.IsZero() {
		j.Created = img.Created.UTC().Format(time.RFC3339)
	}
	if withLabels {
		j.Labels = img.Labels
	}
	return j
}

func imagesToJSON(images []model.ImageInfo) []imageJSON {
	result := make([]imageJSON, 0, len(images))
	for _, img := range images {
		result = append(result, imageToJSON(img, false))
	}
	return result
}

// printImagesText prints a fixed-width table of images.
func printImagesText(out io.Writer, images []model.ImageInfo) {
	if len(images) == 0 {
		fmt.Fprintln(out, "No images built by rayserve-image found.")
		return
	}

	fmt.Fprintf(out, "%-14s %-8s %-10s %-10s %-10s %s\n",
		"IMAGE ID", "VARIANT", "RAY", "VLLM", "SIZE", "TAG")
	for _, img := range images {
		fmt.Fprintf(out, "%-14s %-8s %-10s %-10s %-10s %s\n",
			img.ShortID(), img.Variant, img.RayVersion, img.VLLMVersion,
			formatSize(img.Size), strings.Join(nonEmptyTags(img), ", "))
	}
}

func nonEmptyTags(img model.ImageInfo) []string {
	if len(img.RepoTags) == 0 {
		return []string{img.PrimaryTag()}
	}
	return img.RepoTags
}

// formatSize renders a byte count the way `docker images` does.
func formatSize(n int64) string {
	return units.HumanSizeWithPrecision(float64(n), 3)
}
