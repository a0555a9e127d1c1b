// Package cli: versions.go implements the "rayserve-image versions" command.
//
// The versions command prints the effective build settings for both
// variants after defaults, the config file, $REGISTRY and flags have been
// applied. It never contacts Docker.
package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rayserve-image/internal/config"
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// NewVersionsCommand creates the "versions" cobra command.
func NewVersionsCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Show the pinned Ray and vLLM versions and image references",
		Long: `Show the effective Ray and vLLM versions, base images and target image
references for the cpu and gpu variants.

Examples:
  rayserve-image versions
  REGISTRY=ghcr.io/acme rayserve-image versions --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			flagLayer, err := flags.overlay(cmd.Flags(), nil)
			if err != nil {
				return err
			}
			return runVersions(cmd.OutOrStdout(), flagLayer)
		},
	}

	registerSpecFlags(cmd.Flags(), flags)
	return cmd
}

// variantVersions is one row of the versions output.
type variantVersions struct {
	Variant     string `json:"variant"`
	RayVersion  string `json:"rayVersion"`
	VLLMVersion string `json:"vllmVersion"`
	BaseImage   string `json:"baseImage"`
	Image       string `json:"image"`
	Dockerfile  string `json:"dockerfile"`
	Platform    string `json:"platform"`
}

func runVersions(out io.Writer, flagLayer *config.Overlay) error {
	fileLayer, _, err := loadConfigFile()
	if err != nil {
		return err
	}
	envLayer := config.FromEnv(lookupEnv)

	rows := make([]variantVersions, 0, len(model.Variants()))
	var warnings []string
	for _, v := range model.Variants() {
		spec, w, err := config.Resolve(v, fileLayer, envLayer, flagLayer)
		if err != nil {
			return err
		}
		// Version warnings are identical for both variants.
		if warnings == nil {
			warnings = w
		}
		rows = append(rows, variantVersions{
			Variant:     v.String(),
			RayVersion:  spec.RayVersion,
			VLLMVersion: spec.VLLMVersion,
			BaseImage:   spec.BaseImage(),
			Image:       spec.ImageRef(),
			Dockerfile:  spec.DockerfilePath(),
			Platform:    spec.Platform,
		})
	}
	for _, w := range warnings {
		warn(w)
	}

	if IsJSONOutput() {
		return writeJSON(out, rows)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tRAY\tVLLM\tBASE IMAGE\tIMAGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Variant, r.RayVersion, r.VLLMVersion, r.BaseImage, r.Image)
	}
	return tw.Flush()
}
