package rowset

import (
	"github.com/nexustablet/snapshotd/compressors"
	"github.com/nexustablet/snapshotd/core"
)

// WriterContext carries everything needed to build a new rowset: its id
// plus every metadata field a rebind or format conversion must carry
// forward unchanged from the source rowset (partition, schema hash,
// rowset-type, state, version, version-hash, segments-overlap).
type WriterContext struct {
	RowsetID        core.ID
	TabletID        int64
	PartitionID     int64
	SchemaHash      uint32
	TabletSchemaHash uint32
	RowsetType      core.RowsetType
	RowsetState     core.RowsetState
	Version         core.Version
	VersionHash     uint64
	SegmentsOverlap bool
	Dir             string

	// MaxRowsPerSegment bounds how many rows a single segment file holds;
	// zero means "one segment for the whole rowset".
	MaxRowsPerSegment int
}

// Writer accumulates rows from one or more source readers and, on Build,
// re-emits them as a brand-new set of segment files under a fresh id.
type Writer struct {
	ctx  WriterContext
	rows [][]byte
}

func NewWriter(ctx WriterContext) *Writer {
	return &Writer{ctx: ctx}
}

// AddRowset streams every row from src into this writer's pending buffer.
func (w *Writer) AddRowset(src *Handle) error {
	rows, err := src.Rows()
	if err != nil {
		return err
	}
	w.rows = append(w.rows, rows...)
	return nil
}

// AddRows appends rows produced directly by ingestion (as opposed to
// copied from an existing rowset via AddRowset).
func (w *Writer) AddRows(rows [][]byte) {
	w.rows = append(w.rows, rows...)
}

// Build persists the accumulated rows as a new rowset under ctx.RowsetID
// and returns its Handle.
func (w *Writer) Build() (*Handle, error) {
	comp := compressors.ForRowsetType(w.ctx.RowsetType)

	batchSize := w.ctx.MaxRowsPerSegment
	if batchSize <= 0 || batchSize > len(w.rows) {
		if len(w.rows) == 0 {
			batchSize = 1
		} else {
			batchSize = len(w.rows)
		}
	}

	numSegments := 0
	if len(w.rows) == 0 {
		// An empty rowset still owns one (empty) segment pair, matching the
		// filesystem layout for a zero-row delta.
		if err := writeSegment(w.ctx.Dir, w.ctx.RowsetID, 0, nil, comp); err != nil {
			return nil, err
		}
		numSegments = 1
	} else {
		for start := 0; start < len(w.rows); start += batchSize {
			end := start + batchSize
			if end > len(w.rows) {
				end = len(w.rows)
			}
			if err := writeSegment(w.ctx.Dir, w.ctx.RowsetID, numSegments, w.rows[start:end], comp); err != nil {
				return nil, err
			}
			numSegments++
		}
	}

	meta := core.RowsetMeta{
		RowsetID:         w.ctx.RowsetID,
		TabletID:         w.ctx.TabletID,
		PartitionID:      w.ctx.PartitionID,
		SchemaHash:       w.ctx.SchemaHash,
		TabletSchemaHash: w.ctx.TabletSchemaHash,
		Version:          w.ctx.Version,
		VersionHash:      w.ctx.VersionHash,
		RowsetState:      w.ctx.RowsetState,
		RowsetType:       w.ctx.RowsetType,
		SegmentsOverlap:  w.ctx.SegmentsOverlap,
		Empty:            len(w.rows) == 0,
		NumSegments:      uint32(numSegments),
		NumRows:          uint64(len(w.rows)),
	}
	return New(w.ctx.Dir, meta), nil
}
