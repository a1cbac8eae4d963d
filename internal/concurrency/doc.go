// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// OS-thread level primitives for the task pool: worker threads that own
// their kernel thread for their whole life, optional CPU pinning, and kernel
// thread identity for per-thread resources.
package concurrency
