// Package dockerfile locates the CPU/GPU Dockerfile variants and performs
// lightweight, advisory checks on them.
//
// Nothing in this package blocks a build. A missing Dockerfile or an
// undeclared build arg is reported as a Finding and left for the build
// tool to fail on with its own diagnostics.
package dockerfile
