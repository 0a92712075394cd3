package snapshot

import (
	"fmt"

	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/tablet"
)

// selectRowsets picks the rowsets satisfying a snapshot request against a
// live tablet, returning a consistent ordered set of rowset metas plus a
// deep copy of the tablet header, both taken under one shared read-lock so
// they describe the same observed header version.
func selectRowsets(ref *tablet.TabletRef, req *core.SnapshotRequest) ([]core.RowsetMeta, core.TabletHeader, error) {
	lock := ref.GetHeaderLock()
	defer lock.Unlock()

	var selected []core.RowsetMeta

	if req.IsIncremental() {
		for _, v := range req.MissingVersion {
			r, ok := ref.GetIncRowsetByVersion(v)
			if !ok {
				return nil, core.TabletHeader{}, core.NewError(core.KindVersionNotFound,
					fmt.Sprintf("incremental rowset for version %d not found", v))
			}
			selected = append(selected, r)
		}
	} else {
		target, err := resolveTargetVersion(ref, req)
		if err != nil {
			return nil, core.TabletHeader{}, err
		}
		selected, err = ref.CaptureConsistentRowsets(target)
		if err != nil {
			return nil, core.TabletHeader{}, core.WrapError(core.KindSelectionFailed,
				fmt.Sprintf("cannot cover [0,%d]", target), err)
		}
	}

	headerCopy := ref.GenerateTabletMetaCopyUnlocked()
	return selected, headerCopy, nil
}

func resolveTargetVersion(ref *tablet.TabletRef, req *core.SnapshotRequest) (int64, error) {
	live, ok := ref.RowsetWithMaxVersion()
	if req.Version != nil {
		if !ok || live.Version.End < *req.Version {
			return 0, core.NewError(core.KindBadInput,
				fmt.Sprintf("requested version %d exceeds live version", *req.Version))
		}
		return *req.Version, nil
	}
	if !ok {
		return 0, core.NewError(core.KindVersionNotFound, "tablet has no visible rowsets")
	}
	return live.Version.End, nil
}
