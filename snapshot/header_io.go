package snapshot

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/internal"
)

// headerFileName is the on-disk name for a tablet header: ⟨tablet-id⟩.hdr.
func headerFileName(tabletID int64) string {
	return fmt.Sprintf("%d.hdr", tabletID)
}

// saveHeader persists a tablet header as YAML, the same serialisation
// style config.Load already uses elsewhere in this module.
func saveHeader(fs internal.FilesystemHelper, dir string, tabletID int64, header core.TabletHeader) error {
	data, err := yaml.Marshal(header)
	if err != nil {
		return core.WrapError(core.KindAllocationFailed, "serialise tablet header", err)
	}
	path := filepath.Join(dir, headerFileName(tabletID))
	if err := fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write header file %s: %w", path, err)
	}
	return nil
}

// loadHeader reads a tablet header from ⟨dir⟩/⟨tabletID⟩.hdr. The file's
// name reflects the *target* tablet-id used to look it up, not necessarily
// the tablet-id recorded inside its own body — a restored clone's header
// file is named for the tablet it will become before its body is rewritten
// to match.
func loadHeader(fs internal.FilesystemHelper, dir string, tabletID int64) (core.TabletHeader, error) {
	path := filepath.Join(dir, headerFileName(tabletID))
	data, err := fs.ReadFile(path)
	if err != nil {
		return core.TabletHeader{}, fmt.Errorf("read header file %s: %w", path, err)
	}
	var header core.TabletHeader
	if err := yaml.Unmarshal(data, &header); err != nil {
		return core.TabletHeader{}, core.WrapError(core.KindInitFailed, "deserialise tablet header", err)
	}
	return header, nil
}

// LoadTabletHeader is the exported form of loadHeader, used by callers
// outside this package (the snapshotctl CLI) that need to read a tablet's
// on-disk header before registering a tablet.TabletRef.
func LoadTabletHeader(fs internal.FilesystemHelper, dir string, tabletID int64) (core.TabletHeader, error) {
	return loadHeader(fs, dir, tabletID)
}
