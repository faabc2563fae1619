// SPDX-License-Identifier: MPL-2.0

// Package modelcache warms a local cache of embedding model snapshots so
// baked images can run fully offline. A snapshot is complete only when its
// manifest (snapshot.toml) exists; warming downloads into a staging
// directory and promotes it atomically, so a failed warm never leaves a
// half-populated snapshot behind.
package modelcache
