// SPDX-License-Identifier: MPL-2.0

// Package provision bakes agent runtime images from a recipe. The pipeline
// has three steps, ordered by a dependency graph: the runtime step copies
// the source trees and installs dependencies, the model-cache step warms
// the embedding model snapshot on the host, and the model-layer step bakes
// the snapshot into the final image. Images are cached by a content hash of
// their inputs, so unchanged recipes rebuild nothing.
package provision
