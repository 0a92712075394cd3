package compressors

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/nexustablet/snapshotd/core"
)

// Snappy implements core.Compressor using Snappy block encoding. It is the
// codec used by RowsetType Modern (V2) segment bodies.
type Snappy struct{}

var _ core.Compressor = Snappy{}

func NewSnappy() Snappy { return Snappy{} }

func (Snappy) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (Snappy) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}

func (Snappy) Type() core.CompressionType { return core.CompressionSnappy }
