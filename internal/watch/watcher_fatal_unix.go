// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import "syscall"

// fatalFsnotifyErrnos are inotify resource exhaustion conditions. Once the
// kernel refuses new watches or descriptors the watcher cannot recover:
//   - ENOSPC: inotify watch limit exceeded (fs.inotify.max_user_watches)
//   - EMFILE: per-process file descriptor limit exceeded
//   - ENFILE: system-wide file descriptor limit exceeded
var fatalFsnotifyErrnos = []error{
	syscall.ENOSPC,
	syscall.EMFILE,
	syscall.ENFILE,
}
