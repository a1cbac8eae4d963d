// control/logging.go
// Author: momentics <momentics@gmail.com>
//
// go-kit logger construction shared by the pool, facade and examples.

package control

import (
	"fmt"
	"io"

	"github.com/go-kit/log"
	dslog "github.com/grafana/dskit/log"
)

// NewLogger builds a leveled logger writing to w in the given format.
func NewLogger(w io.Writer, format, lvl string) (log.Logger, error) {
	var l dslog.Level
	if err := l.Set(lvl); err != nil {
		return nil, err
	}
	switch format {
	case dslog.LogfmtFormat, dslog.JSONFormat:
	case "":
		format = dslog.LogfmtFormat
	default:
		return nil, fmt.Errorf("unrecognized log format %q", format)
	}
	logger := dslog.NewGoKitWithLevel(l, format, log.NewSyncWriter(w))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}
