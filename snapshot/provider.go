package snapshot

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/nexustablet/snapshotd/hooks"
	"github.com/nexustablet/snapshotd/idgen"
	"github.com/nexustablet/snapshotd/internal"
	"github.com/nexustablet/snapshotd/tablet"
)

// EngineProvider decouples the Snapshot Manager from the rest of the
// storage engine: the manager never reaches into engine internals
// directly, it only calls through this interface.
type EngineProvider interface {
	GetTabletManager() *tablet.Manager
	GetStorageEngine() *idgen.StorageEngine
	GetFilesystemHelper() internal.FilesystemHelper
	GetLogger() *slog.Logger
	GetTracer() trace.Tracer
	GetHookManager() hooks.HookManager

	// DefaultTimeoutSeconds is used when a SnapshotRequest carries no
	// explicit timeout.
	DefaultTimeoutSeconds() int64
	// MaxLinkConcurrency bounds how many hard-link operations the
	// Materialiser runs in flight at once.
	MaxLinkConcurrency() int
}
