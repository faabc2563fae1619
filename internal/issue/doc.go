// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing error presentation: ActionableError
// carries operation/resource/suggestion context through the bake pipeline,
// and Issue pages render longer markdown help for the failures users hit
// most (no engine installed, missing kilnfile, unresolvable model).
package issue
