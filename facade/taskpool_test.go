//go:build linux
// +build linux

package facade_test

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/momentics/hioload-taskpool/api"
	"github.com/momentics/hioload-taskpool/control"
	"github.com/momentics/hioload-taskpool/facade"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) control.Config {
	dir, err := os.MkdirTemp("", "tpf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := control.DefaultConfig()
	cfg.Workers = 2
	cfg.EndpointDir = dir
	cfg.DrainTimeout = 5 * time.Second
	return cfg
}

func TestTaskPool_FullLifecycle(t *testing.T) {
	var logs bytes.Buffer
	logger, err := control.NewLogger(&logs, "logfmt", "debug")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()

	tp, err := facade.New(testConfig(t), logger, reg)
	require.NoError(t, err)
	require.NoError(t, tp.Start())
	require.NoError(t, tp.Start())
	assert.Equal(t, 2, tp.Pool().Size())

	done := make(chan int, 1)
	require.NoError(t, tp.AddTask(func(n int) { done <- n }, 42))
	select {
	case n := <-done:
		assert.Equal(t, 42, n)
	case <-time.After(10 * time.Second):
		t.Fatal("task did not run")
	}

	state := tp.GetDebugAPI().DumpState()
	assert.Contains(t, state, "platform.cpus")
	assert.Contains(t, state, "pool."+tp.Pool().ID()+".workers")

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Equal(t, 0, tp.Pool().Size())
	assert.Contains(t, logs.String(), "pool started")
	assert.Contains(t, logs.String(), "pool closed")

	n, err := testutil.GatherAndCount(reg, "taskpool_tasks_executed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTaskPool_ShutdownReportsIncompleteDrain(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 1
	cfg.DrainTimeout = 10 * time.Millisecond

	tp, err := facade.New(cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, tp.Start())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, tp.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	time.AfterFunc(50*time.Millisecond, func() { close(release) })

	err = tp.Shutdown(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "drain incomplete")
	assert.ErrorIs(t, tp.Submit(func() {}), api.ErrCodeClosed)
}

func TestTaskPool_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 0
	_, err := facade.New(cfg, nil, nil)
	require.Error(t, err)
}
