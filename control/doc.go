// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, metrics and debug introspection for the task pool.
//
// Provides:
//   - Config with YAML loading, command-line flags and validation
//   - go-kit logger construction with level filtering
//   - Prometheus collectors for submission, dispatch and channel lifecycle
//   - Debug probe registration and state export
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
