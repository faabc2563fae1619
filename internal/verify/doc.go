// SPDX-License-Identifier: MPL-2.0

// Package verify checks baked images from the outside: each check runs a
// small interpreter script inside the image with networking disabled, so a
// pass proves the image works fully offline. Checks cover the module search
// path, the installed dependency set, and (for full images) the baked model
// snapshot and its dimensionality.
package verify
