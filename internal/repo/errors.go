package repo

import (
	"errors"
	"fmt"
)

// Code enumerates the failure kinds a backend operation can report.
type Code int

const (
	// CodeUnknown is never produced by this package; it is the zero value.
	CodeUnknown Code = iota
	// CodeConfiguration is a malformed or missing scheme or path in a root or document URI.
	CodeConfiguration
	// CodeNotFound is a missing source file, directory or commit.
	CodeNotFound
	// CodeAlreadyExists is a rename target collision.
	CodeAlreadyExists
	// CodeCloneTargetNotEmpty is a clone into a non-empty directory. It also matches ErrAlreadyExists.
	CodeCloneTargetNotEmpty
	// CodeRepositoryState is missing or invalid version-control metadata.
	CodeRepositoryState
	// CodeNetwork is a clone, fetch or push failure.
	CodeNetwork
	// CodeIO is a local filesystem failure.
	CodeIO
	// CodeSubfoldersDisabled is a nested document name while subfolder support is off.
	CodeSubfoldersDisabled
)

func (c Code) String() string {
	switch c {
	case CodeConfiguration:
		return "configuration"
	case CodeNotFound:
		return "not found"
	case CodeAlreadyExists:
		return "already exists"
	case CodeCloneTargetNotEmpty:
		return "clone target not empty"
	case CodeRepositoryState:
		return "repository state"
	case CodeNetwork:
		return "network"
	case CodeIO:
		return "io"
	case CodeSubfoldersDisabled:
		return "subfolders disabled"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They compare by Code only.
var (
	ErrConfiguration       = &Error{Code: CodeConfiguration}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrAlreadyExists       = &Error{Code: CodeAlreadyExists}
	ErrCloneTargetNotEmpty = &Error{Code: CodeCloneTargetNotEmpty}
	ErrRepositoryState     = &Error{Code: CodeRepositoryState}
	ErrNetwork             = &Error{Code: CodeNetwork}
	ErrIO                  = &Error{Code: CodeIO}
	ErrSubfoldersDisabled  = &Error{Code: CodeSubfoldersDisabled}
)

// Error is the failure payload returned by every backend operation.
// Path carries the offending file or directory, Err the underlying cause
// (for CodeNetwork this is the transport error, preserved as-is).
type Error struct {
	Code Code
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Code. A clone-target-not-empty error is also
// an already-exists error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == CodeAlreadyExists && e.Code == CodeCloneTargetNotEmpty
}

// NewError builds an *Error.
func NewError(code Code, op, path, msg string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Msg: msg, Err: err}
}

// CodeOf returns the Code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// CloneTargetNotEmpty reports whether err is a clone into a non-empty
// directory and, if so, which directory.
func CloneTargetNotEmpty(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeCloneTargetNotEmpty {
		return e.Path, true
	}
	return "", false
}
