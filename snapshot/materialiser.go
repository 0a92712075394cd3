package snapshot

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/internal"
	"github.com/nexustablet/snapshotd/rowset"
	"github.com/nexustablet/snapshotd/tablet"
)

// materialise builds the snapshot directory tree, hard-links every
// selected rowset's files into it, composes and persists a new header, and
// guarantees the tree is torn down on any failure after the path has been
// allocated.
func (m *manager) materialise(
	p EngineProvider,
	ref *tablet.TabletRef,
	req *core.SnapshotRequest,
	selected []core.RowsetMeta,
	headerCopy core.TabletHeader,
	targetFormat core.SnapshotFormat,
) (snapshotPath string, err error) {
	fs := p.GetFilesystemHelper()

	timeout := p.DefaultTimeoutSeconds()
	if req.TimeoutSeconds != nil {
		timeout = *req.TimeoutSeconds
	}

	snapshotIDPath := m.allocator.allocate(ref, timeout)
	schemaFullPath := filepath.Join(snapshotIDPath, strconv.FormatInt(req.TabletID, 10), strconv.FormatUint(uint64(req.SchemaHash), 10))

	defer func() {
		if err != nil {
			p.GetLogger().Warn("snapshot materialisation failed, removing partial directory", "path", snapshotIDPath, "error", err)
			_ = fs.RemoveAll(snapshotIDPath)
		}
	}()

	if _, statErr := fs.Stat(schemaFullPath); statErr == nil {
		if rmErr := fs.RemoveAll(schemaFullPath); rmErr != nil {
			return "", core.WrapError(core.KindCannotCreateDir, "remove colliding snapshot directory", rmErr)
		}
	}
	if mkErr := fs.MkdirAll(schemaFullPath, 0755); mkErr != nil {
		return "", core.WrapError(core.KindCannotCreateDir, "create snapshot schema directory", mkErr)
	}

	if linkErr := linkSelectedRowsets(fs, ref.DataDir(), schemaFullPath, selected, p.MaxLinkConcurrency()); linkErr != nil {
		return "", linkErr
	}

	header := headerCopy
	header.AlterTask = nil
	header.TabletID = req.TabletID
	header.SchemaHash = req.SchemaHash
	if req.IsIncremental() {
		header.Incremental = selected
		header.Visible = nil
	} else {
		header.Visible = selected
		header.Incremental = nil
	}

	switch targetFormat {
	case core.SnapshotFormatV1:
		var list *[]core.RowsetMeta
		if req.IsIncremental() {
			list = &header.Incremental
		} else {
			list = &header.Visible
		}
		converted, changed, convErr := normalise(schemaFullPath, *list)
		if convErr != nil {
			return "", convErr
		}
		if changed {
			*list = converted
		}
	case core.SnapshotFormatV2:
		// persist as-is
	default:
		return "", core.NewError(core.KindInvalidSnapshotVersion,
			fmt.Sprintf("unknown preferred_snapshot_version %v", targetFormat))
	}

	if saveErr := saveHeader(fs, schemaFullPath, req.TabletID, header); saveErr != nil {
		return "", saveErr
	}

	if !req.IsIncremental() && req.Version != nil && len(selected) > 0 {
		last := selected[len(selected)-1]
		if last.Version.End == *req.Version && last.Version.Start != *req.Version {
			p.GetLogger().Info("selected snapshot tail is not a single delta",
				"tablet_id", req.TabletID, "requested_version", *req.Version,
				"tail_version", last.Version.String())
		}
	}

	canonical, canonErr := fs.Canonicalize(snapshotIDPath)
	if canonErr != nil {
		return "", fmt.Errorf("canonicalize snapshot path: %w", canonErr)
	}

	if req.IsIncremental() {
		req.AllowIncrementalClone = true
	}

	return canonical, nil
}

// linkSelectedRowsets hard-links every segment file of every selected
// rowset from srcDir into dstDir, keyed by each rowset's current id, using
// the filesystem helper's bounded concurrent linker.
func linkSelectedRowsets(fs internal.FilesystemHelper, srcDir, dstDir string, selected []core.RowsetMeta, maxConcurrency int) error {
	f := rowset.NewFactory()
	var pairs []internal.FilePair
	for _, meta := range selected {
		h := f.CreateRowset(srcDir, meta)
		for _, lp := range h.LinkPairs(dstDir, meta.RowsetID) {
			pairs = append(pairs, internal.FilePair{Src: lp.Src, Dst: lp.Dst})
		}
	}
	if err := fs.LinkFiles(pairs, maxConcurrency); err != nil {
		return core.WrapError(core.KindLinkFailed, "hard-link selected rowsets into snapshot directory", err)
	}
	return nil
}
