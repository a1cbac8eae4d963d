// Package api
// Author: momentics@gmail.com
//
// CPU placement constants shared by worker threads and configuration.

package api

// NoCPU marks a worker thread that is not pinned to any CPU.
const NoCPU = -1
