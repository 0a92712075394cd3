package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nexustablet/snapshotd/core"
	"github.com/pierrec/lz4/v4"
)

// LZ4 implements core.Compressor using the LZ4 frame format. It is the
// codec used by RowsetType Legacy (V1) segment bodies; the Format
// Normaliser re-encodes Modern segments through this codec when a caller
// requests SnapshotFormatV1.
type LZ4 struct{}

var _ core.Compressor = LZ4{}

func NewLZ4() LZ4 { return LZ4{} }

func (LZ4) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZ4) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

func (LZ4) Type() core.CompressionType { return core.CompressionLZ4 }

// ForRowsetType returns the codec conventionally associated with a rowset's
// physical layout.
func ForRowsetType(t core.RowsetType) core.Compressor {
	switch t {
	case core.RowsetTypeLegacy:
		return LZ4{}
	case core.RowsetTypeModern:
		return Snappy{}
	default:
		return None{}
	}
}
