package snapshot

import (
	"fmt"

	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/rowset"
)

// convertRowsetIds walks a received snapshot directory, allocates fresh
// rowset ids from the engine's generator, and physically re-emits each
// rowset's files under the new id while preserving version, state, type
// and overlap metadata. A version present in both the visible and
// incremental lists keeps the same new id in both output lists.
func convertRowsetIds(p EngineProvider, cloneDir string, newTabletID int64, newSchemaHash uint32) (*core.TabletHeader, error) {
	fs := p.GetFilesystemHelper()

	if _, err := fs.Stat(cloneDir); err != nil {
		return nil, core.WrapError(core.KindDirNotExist, fmt.Sprintf("clone directory %s does not exist", cloneDir), err)
	}

	loaded, err := loadHeader(fs, cloneDir, newTabletID)
	if err != nil {
		return nil, err
	}

	working := loaded
	working.Visible = nil
	working.Incremental = nil
	working.TabletID = newTabletID
	working.SchemaHash = newSchemaHash

	byVersion := make(map[core.Version]core.RowsetMeta)

	for _, r := range loaded.Visible {
		newID := p.GetStorageEngine().NextRowsetID()
		rebound, err := renameRowset(cloneDir, r, newID)
		if err != nil {
			return nil, err
		}
		rebound.TabletID = newTabletID
		rebound.TabletSchemaHash = newSchemaHash

		working.Visible = append(working.Visible, rebound)
		byVersion[r.Version] = rebound
	}

	for _, r := range loaded.Incremental {
		if shared, ok := byVersion[r.Version]; ok {
			working.Incremental = append(working.Incremental, shared)
			continue
		}
		newID := p.GetStorageEngine().NextRowsetID()
		rebound, err := renameRowset(cloneDir, r, newID)
		if err != nil {
			return nil, err
		}
		rebound.TabletID = newTabletID
		rebound.TabletSchemaHash = newSchemaHash

		working.Incremental = append(working.Incremental, rebound)
		byVersion[r.Version] = rebound
	}

	if err := saveHeader(fs, cloneDir, newTabletID, working); err != nil {
		return nil, err
	}
	return &working, nil
}

// renameRowset opens the existing rowset under oldMeta without consulting
// any cache, streams every row into a writer for newID, and deletes the
// old rowset's files once the new one is durably built.
func renameRowset(cloneDir string, oldMeta core.RowsetMeta, newID core.ID) (core.RowsetMeta, error) {
	f := rowset.NewFactory()
	src := f.CreateRowset(cloneDir, oldMeta)
	if err := src.Load(false); err != nil {
		return core.RowsetMeta{}, core.WrapError(core.KindConversionFailed,
			fmt.Sprintf("load rowset %s for rebind", oldMeta.RowsetID), err)
	}

	w := f.CreateRowsetWriter(rowset.WriterContext{
		RowsetID:        newID,
		PartitionID:     oldMeta.PartitionID,
		SchemaHash:      oldMeta.SchemaHash,
		RowsetType:      oldMeta.RowsetType,
		RowsetState:     oldMeta.RowsetState,
		Version:         oldMeta.Version,
		VersionHash:     oldMeta.VersionHash,
		SegmentsOverlap: oldMeta.SegmentsOverlap,
		Dir:             cloneDir,
	})
	if err := w.AddRowset(src); err != nil {
		return core.RowsetMeta{}, core.WrapError(core.KindConversionFailed,
			fmt.Sprintf("stream rowset %s for rebind", oldMeta.RowsetID), err)
	}
	built, err := w.Build()
	if err != nil {
		return core.RowsetMeta{}, core.WrapError(core.KindConversionFailed,
			fmt.Sprintf("build rebound rowset for %s", oldMeta.RowsetID), err)
	}
	if err := built.Load(false); err != nil {
		return core.RowsetMeta{}, core.WrapError(core.KindConversionFailed,
			fmt.Sprintf("verify rebound rowset %s", newID), err)
	}

	if err := src.Remove(); err != nil {
		return core.RowsetMeta{}, fmt.Errorf("remove old rowset %s after rebind: %w", oldMeta.RowsetID, err)
	}

	return built.RowsetMeta(), nil
}
