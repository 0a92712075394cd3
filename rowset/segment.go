package rowset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexustablet/snapshotd/compressors"
	"github.com/nexustablet/snapshotd/core"
)

// dataFileName / indexFileName follow the on-disk segment file layout:
// ⟨rowset-id⟩_⟨segment⟩.dat / .idx
func dataFileName(id core.ID, segment int) string {
	return fmt.Sprintf("%s_%d.dat", id, segment)
}

func indexFileName(id core.ID, segment int) string {
	return fmt.Sprintf("%s_%d.idx", id, segment)
}

// writeSegment persists one segment: the row bodies concatenated and
// compressed into the .dat file, and a varint-encoded row-length table in
// the .idx file that lets readSegment split the decompressed blob back
// into individual rows.
func writeSegment(dir string, id core.ID, segment int, rows [][]byte, comp core.Compressor) error {
	var raw bytes.Buffer
	idx := make([]byte, 0, 8*(len(rows)+1))
	idx = binary.AppendUvarint(idx, uint64(len(rows)))
	for _, row := range rows {
		idx = binary.AppendUvarint(idx, uint64(len(row)))
		raw.Write(row)
	}

	compressed, err := comp.Compress(raw.Bytes())
	if err != nil {
		return fmt.Errorf("compress segment %d: %w", segment, err)
	}

	if err := os.WriteFile(filepath.Join(dir, dataFileName(id, segment)), compressed, 0644); err != nil {
		return fmt.Errorf("write segment data file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, indexFileName(id, segment)), idx, 0644); err != nil {
		return fmt.Errorf("write segment index file: %w", err)
	}
	return nil
}

// readSegment is the inverse of writeSegment.
func readSegment(dir string, id core.ID, segment int, rowsetType core.RowsetType) ([][]byte, error) {
	comp := compressors.ForRowsetType(rowsetType)

	idxBytes, err := os.ReadFile(filepath.Join(dir, indexFileName(id, segment)))
	if err != nil {
		return nil, fmt.Errorf("read segment index file: %w", err)
	}
	r := bytes.NewReader(idxBytes)
	rowCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("decode row count: %w", err)
	}
	lengths := make([]uint64, rowCount)
	for i := range lengths {
		l, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("decode row length %d: %w", i, err)
		}
		lengths[i] = l
	}

	compressed, err := os.ReadFile(filepath.Join(dir, dataFileName(id, segment)))
	if err != nil {
		return nil, fmt.Errorf("read segment data file: %w", err)
	}
	raw, err := comp.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress segment %d: %w", segment, err)
	}

	rows := make([][]byte, rowCount)
	var offset uint64
	for i, l := range lengths {
		if offset+l > uint64(len(raw)) {
			return nil, fmt.Errorf("segment %d corrupt: row %d exceeds decompressed length", segment, i)
		}
		rows[i] = append([]byte(nil), raw[offset:offset+l]...)
		offset += l
	}
	return rows, nil
}

func removeSegmentFiles(dir string, id core.ID, segment int) error {
	dat := filepath.Join(dir, dataFileName(id, segment))
	idx := filepath.Join(dir, indexFileName(id, segment))
	if err := os.Remove(dat); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(idx); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
