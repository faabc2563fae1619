// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import "syscall"

// fatalFsnotifyErrnos are the Win32 conditions that leave the watcher
// unrecoverable. ReadDirectoryChangesW has no inotify-style watch limits,
// but handle exhaustion and invalidated directory handles still mean no
// further events will ever arrive.
var fatalFsnotifyErrnos = []error{
	syscall.Errno(4), // ERROR_TOO_MANY_OPEN_FILES: per-process handle limit
	syscall.Errno(6), // ERROR_INVALID_HANDLE: watched directory deleted or unmounted
	syscall.Errno(8), // ERROR_NOT_ENOUGH_MEMORY: notification buffer allocation failed
}
