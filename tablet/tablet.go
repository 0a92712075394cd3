// Package tablet models the owner of live tablets, their header, and their
// version graph. The Snapshot Manager only ever borrows a TabletRef for
// the duration of one call; it never outlives the call and is never
// mutated by the snapshot subsystem.
package tablet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nexustablet/snapshotd/core"
)

// SharedLock is the reader side of the tablet header's reader/writer lock.
// The real engine's lock also has a writer side used by compaction and
// ingestion; the Snapshot Manager only ever needs the reader half, so
// that's all this package exposes.
type SharedLock interface {
	Unlock()
}

type sharedLock struct{ mu *sync.RWMutex }

func (s sharedLock) Unlock() { s.mu.RUnlock() }

// TabletRef is a borrowed view of one live tablet: its id, schema-hash,
// schema descriptor, header lock, data-directory path, and version graph,
// all owned by the tablet manager.
type TabletRef struct {
	tabletID   int64
	schemaHash uint32
	schema     []byte
	dataDir    string

	mu     sync.RWMutex
	header core.TabletHeader
}

// NewRef constructs a TabletRef with an initial header, ready to be passed
// to Manager.RegisterTablet. Used by tests and by cmd/snapshotctl.
func NewRef(tabletID int64, schemaHash uint32, schema []byte, dataDir string, header core.TabletHeader) *TabletRef {
	return &TabletRef{
		tabletID:   tabletID,
		schemaHash: schemaHash,
		schema:     schema,
		dataDir:    dataDir,
		header:     header,
	}
}

func (t *TabletRef) TabletID() int64     { return t.tabletID }
func (t *TabletRef) SchemaHash() uint32  { return t.schemaHash }
func (t *TabletRef) Schema() []byte      { return t.schema }
func (t *TabletRef) DataDir() string     { return t.dataDir }

// GetHeaderLock acquires the shared read-lock the Rowset Selector must
// hold for the entire selection plus header copy, so both observe the
// same point-in-time header.
func (t *TabletRef) GetHeaderLock() SharedLock {
	t.mu.RLock()
	return sharedLock{mu: &t.mu}
}

// RowsetWithMaxVersion returns the visible rowset with the highest end
// version, i.e. V_live, or ok=false if the visible list is empty. Caller
// must already hold the header lock.
func (t *TabletRef) RowsetWithMaxVersion() (core.RowsetMeta, bool) {
	var best core.RowsetMeta
	found := false
	for _, r := range t.header.Visible {
		if !found || r.Version.End > best.Version.End {
			best = r
			found = true
		}
	}
	return best, found
}

// GetIncRowsetByVersion returns the incremental rowset whose version is
// exactly (v, v), or ok=false. Caller must already hold the header lock.
func (t *TabletRef) GetIncRowsetByVersion(v int64) (core.RowsetMeta, bool) {
	for _, r := range t.header.Incremental {
		if r.Version.Start == v && r.Version.End == v {
			return r, true
		}
	}
	return core.RowsetMeta{}, false
}

// CaptureConsistentRowsets computes a covering path over [0, target] from
// the visible rowset list: a sequence of rowsets whose version intervals
// partition [0, target] with no gaps. It walks greedily from version 0,
// taking at each step the widest rowset that starts there and does not
// end past target. It does not backtrack: the result is not guaranteed to
// use the fewest rowsets, and it returns an error when the widest choice
// leads to a gap even if a narrower choice would have covered the range.
// Caller must already hold the header lock.
func (t *TabletRef) CaptureConsistentRowsets(target int64) ([]core.RowsetMeta, error) {
	byStart := make(map[int64][]core.RowsetMeta)
	for _, r := range t.header.Visible {
		byStart[r.Version.Start] = append(byStart[r.Version.Start], r)
	}
	for k := range byStart {
		sort.Slice(byStart[k], func(i, j int) bool {
			return byStart[k][i].Version.End > byStart[k][j].Version.End
		})
	}

	var out []core.RowsetMeta
	want := int64(0)
	for want <= target {
		candidates := byStart[want]
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no rowset starts at version %d", want)
		}
		// candidates sorted by End descending; pick the widest that does not
		// overshoot target.
		var pick *core.RowsetMeta
		for i := range candidates {
			if candidates[i].Version.End <= target {
				pick = &candidates[i]
				break
			}
		}
		if pick == nil {
			return nil, fmt.Errorf("no rowset covering [%d,%d] without overshooting target %d", want, want, target)
		}
		out = append(out, *pick)
		want = pick.Version.End + 1
	}
	return out, nil
}

// GenerateTabletMetaCopyUnlocked deep-copies the live header. The
// "unlocked" name is a reminder, not an enforcement: it is the caller's
// job to already be holding the header lock when they call this.
func (t *TabletRef) GenerateTabletMetaCopyUnlocked() core.TabletHeader {
	return t.header.DeepCopy()
}
