// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var endpointMu sync.Mutex

// NewEndpointPath returns "<dir>/<pid>.<seconds>.<microseconds>.sock" for
// the current time. Calls are serialized and each one waits a microsecond
// before returning, so two paths generated by one process never collide.
func NewEndpointPath(dir string) string {
	endpointMu.Lock()
	defer endpointMu.Unlock()

	now := time.Now()
	name := fmt.Sprintf("%d.%d.%06d.sock", os.Getpid(), now.Unix(), now.Nanosecond()/int(time.Microsecond))
	time.Sleep(time.Microsecond)
	return filepath.Join(dir, name)
}
