// Package cli: remove.go implements the "rayserve-image remove" command.
//
// The remove command deletes a local image built by rayserve-image. Images
// without the rayserve.* labels are refused. Unless --yes is given, the
// command asks for confirmation first.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rayserve-image/internal/docker"
	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// removeFlags holds the flag values for the remove command.
type removeFlags struct {
	// yes skips the interactive confirmation prompt.
	yes bool

	// force removes the image even if it is tagged more than once or used
	// by a stopped container.
	force bool
}

// NewRemoveCommand creates the "remove" cobra command.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:   "remove <image>",
		Short: "Remove a local image built by rayserve-image",
		Long: `Remove a local image built by rayserve-image.

Only images carrying the rayserve.* labels can be removed. Pushed copies in
the registry are not touched.

Unless --yes is specified, the command prompts for confirmation.

Examples:
  rayserve-image remove localhost:5000/ray-vllm:2.40.0-vllm0.6.5-cpu
  rayserve-image remove --yes --force 3f2a9c1d0b7e`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Remove without confirmation")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Force removal of the image")

	return cmd
}

func runRemove(ctx context.Context, in io.Reader, out io.Writer, ref string, flags *removeFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	info, err := docker.InspectImage(ctx, cli, ref)
	if err != nil {
		return err
	}
	VerboseLog("Found image %s (%s)", info.ShortID(), info.PrimaryTag())

	if !flags.yes {
		confirmed, err := promptConfirmation(in, out, info)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitUserCancelled, "operation cancelled by user")
		}
	}

	removed, err := docker.RemoveInspectedImage(ctx, cli, ref, flags.force)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return writeJSON(out, map[string]interface{}{
			"image":   ref,
			"id":      info.ID,
			"removed": removed,
		})
	}
	for _, r := range removed {
		fmt.Fprintln(out, r)
	}
	color.New(color.FgGreen).Fprintf(out, "Removed %s\n", ref)
	return nil
}

// promptConfirmation describes the image and reads a y/N answer from in.
// EOF counts as "no".
func promptConfirmation(in io.Reader, out io.Writer, info *model.ImageInfo) (bool, error) {
	fmt.Fprintf(out, "About to remove image %s (%s):\n", info.PrimaryTag(), info.ShortID())
	fmt.Fprintf(out, "  - Ray %s, vLLM %s, %s\n", info.RayVersion, info.VLLMVersion, info.Variant)
	fmt.Fprint(out, "\nContinue? [y/N] ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}
	return false, scanner.Err()
}
