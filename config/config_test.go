package config

import (
	"strings"
	"testing"

	"github.com/nexustablet/snapshotd/core"
	"github.com/stretchr/testify/require"
)

func TestLoadNilReturnsDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, int64(86400), cfg.Snapshot.DefaultTimeoutSeconds)
	require.Equal(t, "V2", cfg.Snapshot.PreferredSnapshotVersion)
	require.Equal(t, core.SnapshotFormatV2, cfg.PreferredFormat())
}

func TestLoadOverlaysYAML(t *testing.T) {
	yaml := `
snapshot:
  default_timeout_seconds: 120
  preferred_snapshot_version: V1
  max_link_concurrency: 2
paths:
  data_roots:
    - /var/lib/store1
    - /var/lib/store2
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Equal(t, int64(120), cfg.Snapshot.DefaultTimeoutSeconds)
	require.Equal(t, core.SnapshotFormatV1, cfg.PreferredFormat())
	require.Equal(t, 2, cfg.Snapshot.MaxLinkConcurrency)
	require.Equal(t, []string{"/var/lib/store1", "/var/lib/store2"}, cfg.Paths.DataRoots)
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestPreferredFormatUnknownIsUnspecified(t *testing.T) {
	cfg := defaults()
	cfg.Snapshot.PreferredSnapshotVersion = "V3"
	require.Equal(t, core.SnapshotFormatUnspecified, cfg.PreferredFormat())
}
