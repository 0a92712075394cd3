package compressors

import (
	"bytes"
	"testing"

	"github.com/nexustablet/snapshotd/core"
)

func TestCompressorsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"simple string", []byte("hello tablet, this is a rowset segment")},
		{"repetitive data", bytes.Repeat([]byte("a"), 1024)},
		{"empty data", []byte{}},
	}

	compressors := []core.Compressor{None{}, Snappy{}, LZ4{}}

	for _, c := range compressors {
		c := c
		t.Run(c.Type().String(), func(t *testing.T) {
			for _, tc := range cases {
				tc := tc
				t.Run(tc.name, func(t *testing.T) {
					compressed, err := c.Compress(tc.data)
					if err != nil {
						t.Fatalf("Compress() error: %v", err)
					}
					decompressed, err := c.Decompress(compressed)
					if err != nil {
						t.Fatalf("Decompress() error: %v", err)
					}
					if !bytes.Equal(tc.data, decompressed) {
						t.Errorf("round-trip mismatch: got %q, want %q", decompressed, tc.data)
					}
				})
			}
		})
	}
}

func TestForRowsetType(t *testing.T) {
	if ForRowsetType(core.RowsetTypeLegacy).Type() != core.CompressionLZ4 {
		t.Errorf("Legacy rowsets should use LZ4")
	}
	if ForRowsetType(core.RowsetTypeModern).Type() != core.CompressionSnappy {
		t.Errorf("Modern rowsets should use Snappy")
	}
	if ForRowsetType(core.RowsetTypeUnknown).Type() != core.CompressionNone {
		t.Errorf("Unknown rowsets should fall back to None")
	}
}
