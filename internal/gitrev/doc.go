// Package gitrev reads the git revision of the build context so it can be
// recorded on the image as org.opencontainers.image.revision.
//
// It shells out to the git CLI via os/exec. A build context that is not a
// git checkout, or a host without git, is not an error: Describe returns
// an empty Revision and the label is omitted.
package gitrev
