// Package core defines the value types, identifiers and codec interface
// shared across the tablet snapshot subsystem: versions, rowset metadata,
// tablet headers and snapshot requests. It has no dependency on the
// filesystem or on any concrete rowset implementation.
package core

import (
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ID is an opaque, globally-unique 128-bit identifier used for rowset ids
// (tablet ids are plain int64 values). The zero value is never a valid
// allocated id.
type ID [16]byte

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalYAML renders an ID as its hex string form so serialised headers
// stay human-readable.
func (id ID) MarshalYAML() (interface{}, error) {
	return id.String(), nil
}

// UnmarshalYAML parses the hex string form written by MarshalYAML.
func (id *ID) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return fmt.Errorf("id %q has wrong length %d", s, len(b))
	}
	copy(id[:], b)
	return nil
}

// Version is a closed interval [Start, End] labelling the contiguous range
// of transactions a rowset covers. Start == End is a single delta.
type Version struct {
	Start int64
	End   int64
}

func (v Version) IsSingleDelta() bool { return v.Start == v.End }

func (v Version) String() string { return fmt.Sprintf("[%d-%d]", v.Start, v.End) }

// RowsetType distinguishes the two physical layouts a rowset's files can be
// stored in.
type RowsetType int

const (
	RowsetTypeUnknown RowsetType = iota
	RowsetTypeLegacy             // V1 physical layout
	RowsetTypeModern             // V2 physical layout
)

func (t RowsetType) String() string {
	switch t {
	case RowsetTypeLegacy:
		return "Legacy"
	case RowsetTypeModern:
		return "Modern"
	default:
		return "Unknown"
	}
}

// RowsetState mirrors the lifecycle stage of a rowset as recorded in its
// meta record. The snapshot subsystem treats it as opaque data to preserve,
// never as something it interprets.
type RowsetState int

const (
	RowsetStateUnknown RowsetState = iota
	RowsetStateVisible
	RowsetStateCommitted
)

// SnapshotFormat is the on-wire format requested by a snapshot caller.
type SnapshotFormat int

const (
	SnapshotFormatUnspecified SnapshotFormat = iota
	SnapshotFormatV1                         // legacy, normalises every rowset to RowsetTypeLegacy
	SnapshotFormatV2                         // as-is, whatever physical layout the rowsets already carry
)

func (f SnapshotFormat) String() string {
	switch f {
	case SnapshotFormatV1:
		return "V1"
	case SnapshotFormatV2:
		return "V2"
	default:
		return "Unspecified"
	}
}

// CompressionType identifies the codec used for a rowset's segment bodies.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionLZ4
)

func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// Compressor is implemented by every segment-body codec. RowsetType
// RowsetTypeModern uses a Snappy compressor; RowsetTypeLegacy uses LZ4.
// The Format Normaliser is the only caller that switches between them.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() CompressionType
}

// RowsetMeta is the serialised form of a rowset handle, as it appears in a
// tablet header's visible or incremental list.
type RowsetMeta struct {
	RowsetID        ID
	TabletID        int64
	PartitionID     int64
	SchemaHash      uint32
	TabletSchemaHash uint32
	Version         Version
	VersionHash     uint64
	RowsetState     RowsetState
	RowsetType      RowsetType
	SegmentsOverlap bool
	Empty           bool
	NumSegments     uint32
	NumRows         uint64
}

func (m RowsetMeta) Clone() RowsetMeta {
	return m
}

// AlterTaskInfo is opaque alter-task bookkeeping carried by a tablet header.
// The Materialiser always drops it from a snapshot's header copy.
type AlterTaskInfo struct {
	AlterVersion int64
	State        string
}

// TabletHeader is a snapshotted-by-value copy of a live tablet's header:
// identity, schema, and the two rowset meta sub-lists.
type TabletHeader struct {
	TabletID    int64
	SchemaHash  uint32
	Schema      []byte // opaque serialised schema descriptor
	Visible     []RowsetMeta
	Incremental []RowsetMeta
	AlterTask   *AlterTaskInfo
}

func (h TabletHeader) DeepCopy() TabletHeader {
	out := h
	out.Visible = append([]RowsetMeta(nil), h.Visible...)
	out.Incremental = append([]RowsetMeta(nil), h.Incremental...)
	if h.Schema != nil {
		out.Schema = append([]byte(nil), h.Schema...)
	}
	if h.AlterTask != nil {
		copyTask := *h.AlterTask
		out.AlterTask = &copyTask
	}
	return out
}

// SnapshotRequest is the ephemeral input to MakeSnapshot. AllowIncrementalClone
// is the sole output field the manager mutates.
type SnapshotRequest struct {
	TabletID                 int64
	SchemaHash               uint32
	Version                  *int64  // optional target end-version
	MissingVersion           []int64 // optional, mutually exclusive with Version
	TimeoutSeconds           *int64  // optional, default from config
	PreferredSnapshotVersion SnapshotFormat

	AllowIncrementalClone bool
}

func (r *SnapshotRequest) IsIncremental() bool { return len(r.MissingVersion) > 0 }
