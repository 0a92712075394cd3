// Package rowset implements the immutable, on-disk unit of storage a
// tablet's version chain is built from: an id, a version interval, and a
// set of segment files, plus the file-level operations (link, load,
// remove) the snapshot subsystem needs on top of it.
package rowset

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nexustablet/snapshotd/core"
)

// FileLinker is the minimal filesystem capability Handle.LinkFilesTo needs.
// It is satisfied structurally by internal.FilesystemHelper, keeping
// rowset decoupled from that package.
type FileLinker interface {
	LinkOrCopyFile(src, dst string) error
}

// Handle is a borrowed view of one rowset's files plus its metadata. It is
// immutable once published: callers never mutate meta in place, they build
// a new Handle (see Writer.Build).
type Handle struct {
	meta core.RowsetMeta
	path string // directory containing this rowset's segment files

	loaded bool
	rows   [][]byte
}

var handleCache = struct {
	mu      sync.Mutex
	entries map[string][][]byte
}{entries: make(map[string][][]byte)}

// New wraps an existing rowset directory with its known metadata. Segment
// membership is derived from meta.NumSegments.
func New(path string, meta core.RowsetMeta) *Handle {
	return &Handle{meta: meta, path: path}
}

func (h *Handle) ID() core.ID              { return h.meta.RowsetID }
func (h *Handle) Version() core.Version    { return h.meta.Version }
func (h *Handle) Dir() string              { return h.path }
func (h *Handle) RowsetMeta() core.RowsetMeta { return h.meta }

// segments returns the segment indices in ascending order: 0..NumSegments-1.
func (h *Handle) segments() []int {
	out := make([]int, h.meta.NumSegments)
	for i := range out {
		out[i] = i
	}
	return out
}

// Load reads every segment's rows into memory. When useCache is true, a
// process-wide cache keyed by (path, id) is consulted and populated; the
// id rebinder must call Load(false) so that a stale or cross-tablet cache
// entry can never leak into a rename.
func (h *Handle) Load(useCache bool) error {
	if h.meta.Empty {
		h.loaded = true
		h.rows = nil
		return nil
	}
	key := h.path + "#" + h.meta.RowsetID.String()
	if useCache {
		handleCache.mu.Lock()
		cached, ok := handleCache.entries[key]
		handleCache.mu.Unlock()
		if ok {
			h.rows = cached
			h.loaded = true
			return nil
		}
	}

	var rows [][]byte
	for _, seg := range h.segments() {
		segRows, err := readSegment(h.path, h.meta.RowsetID, seg, h.meta.RowsetType)
		if err != nil {
			return core.WrapError(core.KindInitFailed, fmt.Sprintf("load rowset %s segment %d", h.ID(), seg), err)
		}
		rows = append(rows, segRows...)
	}
	h.rows = rows
	h.loaded = true
	if useCache {
		handleCache.mu.Lock()
		handleCache.entries[key] = rows
		handleCache.mu.Unlock()
	}
	return nil
}

// Rows returns every row in this rowset, in segment then in-segment order.
// Load must be called first.
func (h *Handle) Rows() ([][]byte, error) {
	if !h.loaded {
		return nil, fmt.Errorf("rowset %s not loaded", h.ID())
	}
	return h.rows, nil
}

// LinkFilesTo hard-links (falling back to a copy) every segment file of
// this rowset into dstDir, renaming the family to idName. Segment numbers
// within a rowset are otherwise preserved.
func (h *Handle) LinkFilesTo(linker FileLinker, dstDir string, idName core.ID) error {
	for _, seg := range h.segments() {
		srcDat := filepath.Join(h.path, dataFileName(h.ID(), seg))
		srcIdx := filepath.Join(h.path, indexFileName(h.ID(), seg))
		dstDat := filepath.Join(dstDir, dataFileName(idName, seg))
		dstIdx := filepath.Join(dstDir, indexFileName(idName, seg))
		if err := linker.LinkOrCopyFile(srcDat, dstDat); err != nil {
			return core.WrapError(core.KindLinkFailed, fmt.Sprintf("link rowset %s segment %d data", h.ID(), seg), err)
		}
		if err := linker.LinkOrCopyFile(srcIdx, dstIdx); err != nil {
			return core.WrapError(core.KindLinkFailed, fmt.Sprintf("link rowset %s segment %d index", h.ID(), seg), err)
		}
	}
	return nil
}

// LinkPair is one (source, destination) file pair, handed to a caller that
// wants to fan link operations for several rowsets out through a single
// bounded worker pool instead of calling LinkFilesTo per rowset.
type LinkPair struct {
	Src, Dst string
}

// LinkPairs computes the (source, destination) pairs LinkFilesTo would
// walk, without performing any I/O itself.
func (h *Handle) LinkPairs(dstDir string, idName core.ID) []LinkPair {
	pairs := make([]LinkPair, 0, 2*len(h.segments()))
	for _, seg := range h.segments() {
		pairs = append(pairs,
			LinkPair{
				Src: filepath.Join(h.path, dataFileName(h.ID(), seg)),
				Dst: filepath.Join(dstDir, dataFileName(idName, seg)),
			},
			LinkPair{
				Src: filepath.Join(h.path, indexFileName(h.ID(), seg)),
				Dst: filepath.Join(dstDir, indexFileName(idName, seg)),
			},
		)
	}
	return pairs
}

// Remove deletes every segment file belonging to this rowset from its
// directory. Called by the id rebinder once a rebound copy has been built
// successfully, so a rebind never leaves the old id's files behind.
func (h *Handle) Remove() error {
	for _, seg := range h.segments() {
		if err := removeSegmentFiles(h.path, h.ID(), seg); err != nil {
			return fmt.Errorf("remove rowset %s segment %d: %w", h.ID(), seg, err)
		}
	}
	return nil
}

// Exists reports whether this rowset's first segment is present on disk.
func (h *Handle) Exists() bool {
	_, err := os.Stat(filepath.Join(h.path, dataFileName(h.ID(), 0)))
	return err == nil
}
