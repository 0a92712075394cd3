package rowset

import "github.com/nexustablet/snapshotd/core"

// Factory opens existing rowsets and starts new ones. It takes no state of
// its own; a tablet's schema descriptor is carried as opaque bytes on
// TabletHeader rather than passed through here.
type Factory struct{}

func NewFactory() Factory { return Factory{} }

// CreateRowset opens an existing rowset's files as a Handle, ready for
// Load.
func (Factory) CreateRowset(path string, meta core.RowsetMeta) *Handle {
	return New(path, meta)
}

// CreateRowsetWriter starts a new rowset under the given context.
func (Factory) CreateRowsetWriter(ctx WriterContext) *Writer {
	return NewWriter(ctx)
}
