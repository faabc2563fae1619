// SPDX-License-Identifier: MPL-2.0

// Package container abstracts the container engines kiln drives (Docker and
// Podman CLIs). The bake pipeline only needs a narrow surface: build an image
// from a generated Dockerfile, check whether a cached image already exists,
// run a container for verification, and remove stale images.
package container
