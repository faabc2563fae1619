// SPDX-License-Identifier: MPL-2.0

// Package recipe defines the kilnfile: the declarative bake recipe naming
// the base interpreter image, the project and shared source trees, the
// dependency manifest, the in-image module search path, and the embedding
// model to cache. Recipes are CUE documents validated against an embedded
// schema, then structurally validated against the host filesystem.
package recipe
