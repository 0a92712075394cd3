package snapshot

import (
	"path/filepath"
	"strings"
)

// underAnySnapshotRoot enforces ReleaseSnapshot's prefix rule: path must
// begin with a known data-root's canonicalised form followed by the
// literal "/snapshot", so it can never be pointed at an arbitrary
// filesystem location.
func underAnySnapshotRoot(canonical string, p EngineProvider) bool {
	for _, store := range p.GetStorageEngine().GetStores() {
		root, err := p.GetFilesystemHelper().Canonicalize(store.Path)
		if err != nil {
			continue
		}
		prefix := filepath.Join(root, "snapshot")
		if canonical == prefix || strings.HasPrefix(canonical, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
