// Package buildx assembles and runs the `docker buildx build` invocation
// that produces the Ray Serve + vLLM image.
//
// Assembly is a pure function of a model.BuildSpec, so the exact command
// line for a given configuration can be checked without a Docker daemon.
// Execution is behind the Runner interface: ExecRunner starts the build
// tool as a child process with inherited stdio, and DryRunner only prints
// the command line.
//
// Build failures are not interpreted. The child's exit status is carried
// out unchanged in a model.BuildFailedError.
package buildx
