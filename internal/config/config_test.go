package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, int(cfg.Reconciler.RequeueInterval().Seconds()))
	assert.Equal(t, 60, int(cfg.Reconciler.ErrorRequeueInterval().Seconds()))
	assert.Equal(t, 15, int(cfg.Watch.LeaseDuration().Seconds()))
	assert.Equal(t, 5, int(cfg.Watch.RenewInterval().Seconds()))
	assert.Equal(t, 10, cfg.Audit.Retention())
	assert.Equal(t, 4, cfg.MultiCluster.Concurrency())
}

func TestLoad_MissingFileReturnsDefaultsNotError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30, int(cfg.Reconciler.RequeueInterval().Seconds()))
}

func TestLoad_OverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
reconciler:
  requeueIntervalSeconds: 15
watch:
  leaseDurationSeconds: 20
  renewIntervalSeconds: 5
audit:
  retentionCount: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, int(cfg.Reconciler.RequeueInterval().Seconds()))
	assert.Equal(t, 20, int(cfg.Watch.LeaseDuration().Seconds()))
	assert.Equal(t, 25, cfg.Audit.Retention())
}

func TestValidate_RejectsRenewIntervalNotLessThanLeaseDuration(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{LeaseDurationSeconds: 10, RenewIntervalSeconds: 10}}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeValues(t *testing.T) {
	assert.Error(t, (&Config{Reconciler: ReconcilerConfig{RequeueIntervalSeconds: -1}}).Validate())
	assert.Error(t, (&Config{Audit: AuditConfig{RetentionCount: -1}}).Validate())
}
