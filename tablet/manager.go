package tablet

import "sync"

// Manager is the in-process tablet directory the Snapshot Manager looks
// tablets up through by (tablet id, schema hash). A full storage engine
// would back this with its complete tablet map; this package provides the
// minimal, mockable registry the snapshot subsystem needs.
type Manager struct {
	mu      sync.RWMutex
	tablets map[key]*TabletRef
}

type key struct {
	tabletID   int64
	schemaHash uint32
}

func NewManager() *Manager {
	return &Manager{tablets: make(map[key]*TabletRef)}
}

// GetTablet returns the tablet registered under (tabletID, schemaHash), or
// ok=false if none exists — the Manager surfaces this as KindTabletNotFound.
func (m *Manager) GetTablet(tabletID int64, schemaHash uint32) (*TabletRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.tablets[key{tabletID, schemaHash}]
	return ref, ok
}

// RegisterTablet adds or replaces a tablet. Used by tests and by whatever
// component owns tablet lifecycle in a full deployment.
func (m *Manager) RegisterTablet(ref *TabletRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tablets[key{ref.tabletID, ref.schemaHash}] = ref
}
