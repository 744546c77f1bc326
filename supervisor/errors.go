package supervisor

import "errors"

var (
	// ErrNotFound means the instance id is not in the registry.
	ErrNotFound = errors.New("instance not found")
	// ErrAlreadyRunning means a live process already exists for the instance.
	ErrAlreadyRunning = errors.New("instance already running")
	// ErrNotRunning means no live process exists for the instance.
	ErrNotRunning = errors.New("instance not running")
	// ErrPathMissing means the instance's root path does not exist on disk.
	ErrPathMissing = errors.New("instance path does not exist")
	// ErrStdinUnavailable means the process input stream is closed.
	ErrStdinUnavailable = errors.New("instance stdin unavailable")
)
