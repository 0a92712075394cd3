package compressors

import "github.com/nexustablet/snapshotd/core"

// None implements core.Compressor without performing any compression. It
// is the codec ForRowsetType returns for RowsetTypeUnknown.
type None struct{}

var _ core.Compressor = None{}

func (None) Compress(data []byte) ([]byte, error) { return data, nil }

func (None) Decompress(data []byte) ([]byte, error) { return data, nil }

func (None) Type() core.CompressionType { return core.CompressionNone }
