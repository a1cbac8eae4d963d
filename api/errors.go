// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-taskpool.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrRegistryClosed = errors.New("registry is closed")
	ErrWouldBlock     = errors.New("operation would block")
	ErrNotSupported   = errors.New("operation not supported")
)

// ErrorCode identifies the step of a pool operation that failed. Start and
// AddTask report one code per step so callers can tell failures apart.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota

	// Start.
	ErrCodeAlreadyStarted
	ErrCodeEmptyEndpoint
	ErrCodeZeroWorkers
	ErrCodeListen
	ErrCodeRegistryCreate
	ErrCodeRegisterListener
	ErrCodeThreadCreate
	ErrCodeThreadStart

	// AddTask.
	ErrCodeNotStarted
	ErrCodeClosed
	ErrCodeChannelInit
	ErrCodeChannelLink
	ErrCodeEnvelope
	ErrCodeSend

	// Close.
	ErrCodeCloseFromWorker
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:               "ok",
	ErrCodeAlreadyStarted:   "already_started",
	ErrCodeEmptyEndpoint:    "empty_endpoint",
	ErrCodeZeroWorkers:      "zero_workers",
	ErrCodeListen:           "listen",
	ErrCodeRegistryCreate:   "registry_create",
	ErrCodeRegisterListener: "register_listener",
	ErrCodeThreadCreate:     "thread_create",
	ErrCodeThreadStart:      "thread_start",
	ErrCodeNotStarted:       "not_started",
	ErrCodeClosed:           "closed",
	ErrCodeChannelInit:      "channel_init",
	ErrCodeChannelLink:      "channel_link",
	ErrCodeEnvelope:         "envelope",
	ErrCodeSend:             "send",
	ErrCodeCloseFromWorker:  "close_from_worker",
}

// String returns the metric/log friendly name of the code.
func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Error implements the error interface so a bare code can be used as an
// errors.Is target: errors.Is(err, api.ErrCodeSend).
func (c ErrorCode) Error() string {
	return c.String()
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error or a bare ErrorCode with the same code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// CodeOf extracts the ErrorCode carried by err, or ErrCodeOK for nil and
// errors that carry none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c ErrorCode
	if errors.As(err, &c) {
		return c
	}
	return ErrCodeOK
}
