// Package idgen provides the process-wide, atomically-allocated identifier
// generator and data-root registry the storage engine singleton would
// otherwise own.
package idgen

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nexustablet/snapshotd/core"
)

// Generator vends fresh, globally-unique core.ID values. A single process
// shares one Generator instance; allocation is safe for concurrent use.
type Generator struct {
	mu sync.Mutex
}

// NewGenerator returns a ready-to-use Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next allocates a fresh id. The mutex is not strictly required by
// uuid.New (which is already safe for concurrent use), but it keeps the
// allocation path structurally identical to the path allocator's own
// read-and-increment sequence counter, so both process-wide counter
// resources in this module are guarded the same way.
func (g *Generator) Next() core.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := uuid.New()
	var id core.ID
	copy(id[:], u[:])
	return id
}

// DataDir models one of StorageEngine.get_stores()'s registered data
// directories: a root path that owns a tablet's on-disk files.
type DataDir struct {
	Path string
}

// StorageEngine is the minimal surface the snapshot subsystem borrows from
// the storage-engine singleton: an id generator and the set of registered
// data directories used by ReleaseSnapshot's prefix check.
type StorageEngine struct {
	Gen    *Generator
	Stores []DataDir
}

func NewStorageEngine(stores ...DataDir) *StorageEngine {
	return &StorageEngine{Gen: NewGenerator(), Stores: stores}
}

func (s *StorageEngine) NextRowsetID() core.ID { return s.Gen.Next() }

func (s *StorageEngine) GetStores() []DataDir { return s.Stores }
