// Package snapshot implements the Snapshot Manager: consistent rowset
// selection, atomic hard-link-based materialisation, and rowset-id
// rebinding for cross-node restore. See allocator.go, selector.go,
// materialiser.go, normaliser.go and rebinder.go for the five components;
// this file wires them behind the exported ManagerInterface.
package snapshot

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/hooks"
)

// ManagerInterface is the externally visible API of the Snapshot Manager:
// create a snapshot, release one, and rebind rowset ids on restore.
type ManagerInterface interface {
	MakeSnapshot(ctx context.Context, req *core.SnapshotRequest) (string, error)
	ReleaseSnapshot(ctx context.Context, path string) error
	ConvertRowsetIds(ctx context.Context, cloneDir string, newTabletID int64, newSchemaHash uint32) error
}

type manager struct {
	provider  EngineProvider
	allocator *pathAllocator
}

// NewManager builds a Snapshot Manager bound to the given engine bridge.
func NewManager(provider EngineProvider) ManagerInterface {
	return &manager{
		provider:  provider,
		allocator: newPathAllocator(),
	}
}

func (m *manager) MakeSnapshot(ctx context.Context, req *core.SnapshotRequest) (path string, err error) {
	if req == nil {
		return "", core.NewError(core.KindBadInput, "nil snapshot request")
	}
	p := m.provider
	ctx, span := p.GetTracer().Start(ctx, "Manager.MakeSnapshot")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("snapshot.tablet_id", req.TabletID),
		attribute.Int64("snapshot.schema_hash", int64(req.SchemaHash)),
	)

	if hookErr := p.GetHookManager().Trigger(ctx, hooks.NewPreMakeSnapshotEvent(hooks.PreMakeSnapshotPayload{
		TabletID: req.TabletID, SchemaHash: req.SchemaHash,
	})); hookErr != nil {
		return "", fmt.Errorf("operation cancelled by pre-hook: %w", hookErr)
	}

	path, err = m.doMakeSnapshot(p, req)

	if hookErr := p.GetHookManager().Trigger(ctx, hooks.NewPostMakeSnapshotEvent(hooks.PostMakeSnapshotPayload{
		TabletID: req.TabletID, SchemaHash: req.SchemaHash, SnapshotPath: path, Error: err,
	})); hookErr != nil {
		p.GetLogger().Warn("post-make-snapshot hook failed", "error", hookErr)
	}

	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return path, nil
}

func (m *manager) doMakeSnapshot(p EngineProvider, req *core.SnapshotRequest) (string, error) {
	tm := p.GetTabletManager()
	ref, ok := tm.GetTablet(req.TabletID, req.SchemaHash)
	if !ok {
		return "", core.NewError(core.KindTabletNotFound,
			fmt.Sprintf("tablet %d/%d not found", req.TabletID, req.SchemaHash))
	}

	selected, headerCopy, err := selectRowsets(ref, req)
	if err != nil {
		return "", err
	}

	targetFormat := req.PreferredSnapshotVersion
	path, err := m.materialise(p, ref, req, selected, headerCopy, targetFormat)
	if err != nil {
		return "", err
	}

	p.GetLogger().Info("snapshot created", "tablet_id", req.TabletID, "schema_hash", req.SchemaHash, "path", path)
	return path, nil
}

func (m *manager) ReleaseSnapshot(ctx context.Context, path string) (err error) {
	p := m.provider
	ctx, span := p.GetTracer().Start(ctx, "Manager.ReleaseSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("snapshot.path", path))

	if hookErr := p.GetHookManager().Trigger(ctx, hooks.NewPreReleaseSnapshotEvent(hooks.PreReleaseSnapshotPayload{SnapshotPath: path})); hookErr != nil {
		return fmt.Errorf("operation cancelled by pre-hook: %w", hookErr)
	}

	err = m.doReleaseSnapshot(p, path)

	if hookErr := p.GetHookManager().Trigger(ctx, hooks.NewPostReleaseSnapshotEvent(hooks.PostReleaseSnapshotPayload{SnapshotPath: path, Error: err})); hookErr != nil {
		p.GetLogger().Warn("post-release-snapshot hook failed", "error", hookErr)
	}

	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (m *manager) doReleaseSnapshot(p EngineProvider, path string) error {
	fs := p.GetFilesystemHelper()
	canonical, err := fs.Canonicalize(path)
	if err != nil {
		return core.WrapError(core.KindIllegalPath, "canonicalize release path", err)
	}

	if !underAnySnapshotRoot(canonical, p) {
		return core.NewError(core.KindIllegalPath, fmt.Sprintf("path %s is not under a known data-root's snapshot tree", canonical))
	}

	if _, err := fs.Stat(canonical); err != nil {
		return core.WrapError(core.KindDirNotExist, fmt.Sprintf("snapshot directory %s does not exist", canonical), err)
	}

	if err := fs.RemoveAll(canonical); err != nil {
		return fmt.Errorf("remove snapshot directory %s: %w", canonical, err)
	}
	p.GetLogger().Info("snapshot released", "path", canonical)
	return nil
}

func (m *manager) ConvertRowsetIds(ctx context.Context, cloneDir string, newTabletID int64, newSchemaHash uint32) (err error) {
	p := m.provider
	ctx, span := p.GetTracer().Start(ctx, "Manager.ConvertRowsetIds")
	defer span.End()
	span.SetAttributes(
		attribute.String("snapshot.clone_dir", cloneDir),
		attribute.Int64("snapshot.new_tablet_id", newTabletID),
	)

	if hookErr := p.GetHookManager().Trigger(ctx, hooks.NewPreConvertRowsetIdsEvent(hooks.PreConvertRowsetIdsPayload{
		CloneDir: cloneDir, NewTabletID: newTabletID, NewSchemaHash: newSchemaHash,
	})); hookErr != nil {
		return fmt.Errorf("operation cancelled by pre-hook: %w", hookErr)
	}

	var rewritten *core.TabletHeader
	rewritten, err = convertRowsetIds(p, cloneDir, newTabletID, newSchemaHash)

	if hookErr := p.GetHookManager().Trigger(ctx, hooks.NewPostConvertRowsetIdsEvent(hooks.PostConvertRowsetIdsPayload{
		CloneDir: cloneDir, Header: rewritten, Error: err,
	})); hookErr != nil {
		p.GetLogger().Warn("post-convert-rowset-ids hook failed", "error", hookErr)
	}

	if err != nil {
		span.RecordError(err)
	}
	return err
}
