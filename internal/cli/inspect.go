// Package cli: inspect.go implements the "rayserve-image inspect" command.
//
// The inspect command shows the build metadata recorded in the labels of a
// single image: Ray and vLLM versions, variant, base image, git revision
// and build ID.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rayserve-image/internal/docker"
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// NewInspectCommand creates the "inspect" cobra command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <image>",
		Short: "Show the build metadata of an image",
		Long: `Show the build metadata of an image built by rayserve-image.

The image may be given by ID or by any of its tags.

Examples:
  rayserve-image inspect localhost:5000/ray-vllm:2.40.0-vllm0.6.5-gpu
  rayserve-image inspect 3f2a9c1d0b7e --json`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runInspect(ctx context.Context, out io.Writer, ref string) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	info, err := docker.InspectImage(ctx, cli, ref)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return writeJSON(out, imageToJSON(*info, true))
	}
	printImageDetail(out, info)
	return nil
}

// printImageDetail prints one image as "key: value" lines.
func printImageDetail(out io.Writer, info *model.ImageInfo) {
	fmt.Fprintf(out, "ID:           %s\n", info.ID)
	for _, tag := range nonEmptyTags(*info) {
		fmt.Fprintf(out, "Tag:          %s\n", tag)
	}
	for _, d := range info.RepoDigests {
		fmt.Fprintf(out, "Digest:       %s\n", d)
	}
	fmt.Fprintf(out, "Variant:      %s\n", info.Variant)
	fmt.Fprintf(out, "Ray:          %s\n", info.RayVersion)
	fmt.Fprintf(out, "vLLM:         %s\n", info.VLLMVersion)
	if info.BaseImage != "" {
		fmt.Fprintf(out, "Base image:   %s\n", info.BaseImage)
	}
	if !info.Created.IsZero() {
		fmt.Fprintf(out, "Created:      %s\n", info.Created.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "Size:         %s\n", formatSize(info.Size))
	if info.Revision != "" {
		fmt.Fprintf(out, "Revision:     %s\n", info.Revision)
	}
	if info.BuildID != "" {
		fmt.Fprintf(out, "Build ID:     %s\n", info.BuildID)
	}
}
