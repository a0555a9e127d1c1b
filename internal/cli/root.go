// Package cli implements the cobra-based CLI commands for rayserve-image.
//
// Each subcommand (build, print, versions, list, inspect, remove) is
// defined in its own file within this package. This file defines the root
// command, the global flags, and exit-code handling.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// Global flag variables shared across all subcommands. They are bound to
// persistent flags on the root command.
var (
	// jsonOutput switches command output and error reporting to JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// configPath is an explicit build config file. When empty, the
	// working directory is searched with config.Discover.
	configPath string
)

// Version, Commit and Date are set at build time via ldflags and injected
// from the main package.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command with all
// subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rayserve-image",
		Short: "Build and push the Ray Serve + vLLM inference image",
		Long: `rayserve-image builds the Ray Serve + vLLM inference container image with
docker buildx and pushes it to a registry.

The Ray and vLLM versions are pinned defaults. They can be overridden with a
rayserve-image.yaml (or .jsonc) file, the REGISTRY environment variable, or
flags. The CPU or GPU Dockerfile variant is chosen per build.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			syncLogger()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Build config file (default: ./rayserve-image.{yaml,yml,jsonc,json} if present)")

	rootCmd.AddCommand(NewBuildCommand())
	rootCmd.AddCommand(NewPrintCommand())
	rootCmd.AddCommand(NewVersionsCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewRemoveCommand())

	return rootCmd
}

// Execute runs the root command and exits the process with the
// appropriate status. It is the main entry point called from main.go.
//
// SIGINT and SIGTERM cancel the command context, which stops a running
// build tool process.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	syncLogger()
	if err == nil {
		return
	}
	os.Exit(ReportError(os.Stderr, err))
}

// ReportError prints err to w in text or JSON form and returns the exit
// code the process should terminate with.
//
// A failed build tool run exits with the tool's own status. Its
// diagnostics are already on the terminal, so only a one-line summary is
// added. CLIErrors carry their own code; anything else is ExitGeneralError.
func ReportError(w io.Writer, err error) int {
	var buildErr *model.BuildFailedError
	if errors.As(err, &buildErr) {
		// The tool has already printed its own diagnostics, and the
		// wrapped exec error only repeats the status.
		printError(w, buildErr.Error(), nil)
		if buildErr.Code <= 0 {
			return int(model.ExitGeneralError)
		}
		return buildErr.Code
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, cliErr.Message, cliErr.Err)
		return int(cliErr.Code)
	}

	printError(w, err.Error(), nil)
	return int(model.ExitGeneralError)
}

// printError outputs an error message in the format selected by --json.
// Errors always go to stderr; stdout is reserved for command output.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"message": message,
		}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// writeJSON marshals v with 2-space indentation and writes it to w.
func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
