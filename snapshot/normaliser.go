package snapshot

import (
	"fmt"

	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/rowset"
)

// normalise re-emits every Modern-layout meta's rows in the legacy
// physical layout under dstPath, producing a new meta; Legacy metas pass
// through unchanged. It reports whether any conversion actually happened
// so the Materialiser only replaces a header sub-list when there's
// something to replace.
func normalise(dstPath string, metas []core.RowsetMeta) ([]core.RowsetMeta, bool, error) {
	f := rowset.NewFactory()
	out := make([]core.RowsetMeta, 0, len(metas))
	changed := false

	for _, m := range metas {
		if m.RowsetType != core.RowsetTypeModern {
			out = append(out, m)
			continue
		}

		src := f.CreateRowset(dstPath, m)
		if err := src.Load(false); err != nil {
			return nil, false, core.WrapError(core.KindConversionFailed,
				fmt.Sprintf("load rowset %s for conversion", m.RowsetID), err)
		}

		// The Modern segment files at dstPath are hard-linked to the live
		// tablet's originals, sharing one inode. Unlink them now that the
		// rows are loaded in memory, so the writer below creates fresh
		// inodes instead of truncating the shared one in place.
		if err := src.Remove(); err != nil {
			return nil, false, core.WrapError(core.KindConversionFailed,
				fmt.Sprintf("unlink hard-linked rowset %s before conversion", m.RowsetID), err)
		}

		w := f.CreateRowsetWriter(rowset.WriterContext{
			RowsetID:         m.RowsetID,
			TabletID:         m.TabletID,
			PartitionID:      m.PartitionID,
			SchemaHash:       m.SchemaHash,
			TabletSchemaHash: m.TabletSchemaHash,
			RowsetType:       core.RowsetTypeLegacy,
			RowsetState:      m.RowsetState,
			Version:          m.Version,
			VersionHash:      m.VersionHash,
			SegmentsOverlap:  m.SegmentsOverlap,
			Dir:              dstPath,
		})
		if err := w.AddRowset(src); err != nil {
			return nil, false, core.WrapError(core.KindConversionFailed,
				fmt.Sprintf("stream rowset %s for conversion", m.RowsetID), err)
		}
		converted, err := w.Build()
		if err != nil {
			return nil, false, core.WrapError(core.KindConversionFailed,
				fmt.Sprintf("build converted rowset %s", m.RowsetID), err)
		}

		out = append(out, converted.RowsetMeta())
		changed = true
	}

	return out, changed, nil
}
