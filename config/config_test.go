package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cohort.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Channel.Capacity)
	assert.Equal(t, uint64(240), cfg.Channel.Backoff)
	assert.Equal(t, uint(258), cfg.Accelerator.RegisterNr)
	assert.Equal(t, uint(257), cfg.Accelerator.UnregisterNr)
	assert.Equal(t, -1, cfg.Accelerator.Core)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(write(t, `
channel:
  capacity: 64
  identity: 7
  retry_delay: 25ms
accelerator:
  kind: loopback
  core: 2
log:
  level: debug
  console: true
metrics:
  listen: ":9100"
`))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Channel.Capacity)
	assert.Equal(t, uint8(7), cfg.Channel.Identity)
	assert.Equal(t, 25*time.Millisecond, cfg.Channel.RetryDelay)
	assert.Equal(t, uint64(240), cfg.Channel.Backoff, "unset fields keep defaults")
	assert.Equal(t, AcceleratorLoopback, cfg.Accelerator.Kind)
	assert.Equal(t, 2, cfg.Accelerator.Core)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(write(t, `
channel:
  capacity: 0
  retries: -1
accelerator:
  kind: fpga
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel.capacity")
	assert.Contains(t, err.Error(), "channel.retries")
	assert.Contains(t, err.Error(), `"fpga"`)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(write(t, "channel: [1, 2"))
	require.Error(t, err)
}
