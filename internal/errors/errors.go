// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	KindNotTracked          Kind = "NOT_TRACKED"
	KindAlreadyTracked      Kind = "ALREADY_TRACKED"
	KindVersionNotFound     Kind = "VERSION_NOT_FOUND"
	KindInvalidBumpSequence Kind = "INVALID_BUMP_SEQUENCE"
	KindLockFileMissing     Kind = "LOCK_FILE_MISSING"
	KindLockFileCorrupt     Kind = "LOCK_FILE_CORRUPT"
	KindLockHistoryMismatch Kind = "LOCK_HISTORY_MISMATCH"
	KindConcurrentAccess    Kind = "CONCURRENT_ACCESS"
	KindIOFailure           Kind = "IO_FAILURE"
)

// Error is the tagged error every store and engine operation surfaces.
// Path is the project-relative path the failure is scoped to, when any.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Message, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind carried by err, or "" for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func NotTracked(path string) *Error {
	return &Error{Kind: KindNotTracked, Path: path, Message: "file is not tracked"}
}

func AlreadyTracked(path string) *Error {
	return &Error{Kind: KindAlreadyTracked, Path: path, Message: "file is already tracked"}
}

func VersionNotFound(path, version string) *Error {
	return &Error{Kind: KindVersionNotFound, Path: path, Message: fmt.Sprintf("version %s not found", version)}
}

func InvalidBumpSequence(path, current, requested string) *Error {
	return &Error{
		Kind:    KindInvalidBumpSequence,
		Path:    path,
		Message: fmt.Sprintf("version %s does not advance past %s", requested, current),
	}
}

func LockFileMissing(path string) *Error {
	return &Error{Kind: KindLockFileMissing, Path: path, Message: "lock manifest not found"}
}

func LockFileCorrupt(path string, err error) *Error {
	return &Error{Kind: KindLockFileCorrupt, Path: path, Message: "lock manifest is unparsable", Err: err}
}

func LockHistoryMismatch(path, version string) *Error {
	return &Error{
		Kind:    KindLockHistoryMismatch,
		Path:    path,
		Message: fmt.Sprintf("locked version %s does not match stored history", version),
	}
}

func ConcurrentAccess(lockPath string) *Error {
	return &Error{Kind: KindConcurrentAccess, Path: lockPath, Message: "another snaptrack process holds the project lock"}
}

func IOFailure(path, action string, err error) *Error {
	return &Error{Kind: KindIOFailure, Path: path, Message: action, Err: err}
}
