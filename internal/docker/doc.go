// Package docker provides Docker Engine API wrappers for the images
// produced by the rayserve-image CLI.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image label management: the build parameters are written into
//     OCI and rayserve.* labels at build time and read back later
//   - Image operations: list built images, inspect, remove
//
// The build itself does not go through the Engine API; it is delegated to
// `docker buildx` by the buildx package. This package is only used before
// a build (daemon ping) and for working with its results.
package docker
