// Package model defines the domain types and value objects for the
// rayserve-image CLI.
//
// This package contains pure data structures with no external dependencies.
// A BuildSpec holds every value that is interpolated into one build tool
// invocation. An Invocation is the resulting command line. An ImageInfo is
// a built image reconstructed from the Docker daemon's view of it.
//
// The package also defines exit codes (ExitCode) and the error types
// (CLIError, BuildFailedError) that carry exit codes for proper OS process
// exit handling.
package model
