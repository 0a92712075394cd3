package snapshot

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nexustablet/snapshotd/tablet"
)

// pathAllocator computes, but never creates, the directory a snapshot will
// live in. The timestamp-plus-sequence combination must be unique within a
// process, so the read-and-increment of the sequence counter is guarded by
// a short-lived exclusive lock.
type pathAllocator struct {
	mu  sync.Mutex
	seq uint64
}

func newPathAllocator() *pathAllocator {
	return &pathAllocator{}
}

// allocate returns ⟨tablet.data_dir⟩/snapshot/⟨YYYYMMDDhhmmss⟩.⟨seq⟩.⟨timeout_s⟩.
// It does not touch the filesystem.
func (a *pathAllocator) allocate(ref *tablet.TabletRef, timeoutSeconds int64) string {
	a.mu.Lock()
	seq := a.seq
	a.seq++
	a.mu.Unlock()

	ts := time.Now().Format("20060102150405")
	name := fmt.Sprintf("%s.%d.%d", ts, seq, timeoutSeconds)
	return filepath.Join(ref.DataDir(), "snapshot", name)
}
