// SPDX-License-Identifier: MPL-2.0

// Package cueval validates user-supplied CUE documents against embedded
// schemas and decodes them into Go structs. It is the parsing backbone for
// kilnfile recipes: compile schema, compile user data, unify, validate,
// decode. Errors carry JSON-path context so users see exactly which recipe
// field is wrong.
package cueval
