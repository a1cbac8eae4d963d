package control

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	dslog "github.com/grafana/dskit/log"
	"github.com/momentics/hioload-taskpool/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, 1, cfg.EventBatch)
	assert.Equal(t, 5*time.Second, cfg.DrainTimeout)
	assert.Empty(t, cfg.CPUs)
}

func TestConfig_Flags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-pool.workers=3",
		"-pool.cpus=0, 0",
		"-pool.event-batch=2",
		"-log.level=debug",
	}))

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, CPUList{0, 0}, cfg.CPUs)
	assert.Equal(t, 2, cfg.EventBatch)
	assert.Equal(t, "debug", cfg.LogLevel.String())
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]func(c *Config){
		"zero workers":     func(c *Config) { c.Workers = 0 },
		"no endpoint":      func(c *Config) { c.EndpointDir, c.EndpointPath = "", "" },
		"long path":        func(c *Config) { c.EndpointPath = "/" + string(make([]byte, 200)) },
		"bad cpu":          func(c *Config) { c.CPUs = CPUList{runtime.NumCPU()} },
		"zero batch":       func(c *Config) { c.EventBatch = 0 },
		"tiny recv buffer": func(c *Config) { c.RecvBuffer = 4 },
		"negative drain":   func(c *Config) { c.DrainTimeout = -time.Second },
		"no log level":     func(c *Config) { c.LogLevel = dslog.Level{} },
		"bad log format":   func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: 6
endpoint_dir: ${TASKPOOL_TEST_DIR}
cpus: [0]
drain_timeout: 250ms
log_format: json
`), 0o600))
	levelPath := filepath.Join(dir, "level.yaml")
	require.NoError(t, os.WriteFile(levelPath, []byte("log_level: warn\n"), 0o600))
	t.Setenv("TASKPOOL_TEST_DIR", dir)

	cfg := DefaultConfig()
	require.NoError(t, LoadConfig(path, true, &cfg))
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, dir, cfg.EndpointDir)
	assert.Equal(t, CPUList{0}, cfg.CPUs)
	assert.Equal(t, 250*time.Millisecond, cfg.DrainTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel.String(), "unset keys keep defaults")
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	require.NoError(t, LoadConfig(path, false, &cfg))
	assert.Equal(t, "${TASKPOOL_TEST_DIR}", cfg.EndpointDir)

	cfg = DefaultConfig()
	require.NoError(t, LoadConfig(levelPath, false, &cfg))
	assert.Equal(t, "warn", cfg.LogLevel.String())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	assert.Error(t, LoadConfig(filepath.Join(dir, "missing.yaml"), false, &cfg))

	path := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workerz: 2\n"), 0o600))
	assert.Error(t, LoadConfig(path, false, &cfg))
}

func TestCPUList(t *testing.T) {
	var l CPUList
	require.NoError(t, l.Set("2,0,1"))
	assert.Equal(t, "2,0,1", l.String())
	assert.Equal(t, 2, l.Assign(0))
	assert.Equal(t, 1, l.Assign(2))
	assert.Equal(t, 2, l.Assign(3))

	assert.Error(t, l.Set("1,x"))
	require.NoError(t, l.Set(""))
	assert.Equal(t, api.NoCPU, l.Assign(5))
}
