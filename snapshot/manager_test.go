package snapshot

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nexustablet/snapshotd/core"
	"github.com/nexustablet/snapshotd/hooks"
	"github.com/nexustablet/snapshotd/idgen"
	"github.com/nexustablet/snapshotd/internal"
	"github.com/nexustablet/snapshotd/rowset"
	"github.com/nexustablet/snapshotd/tablet"
	"github.com/stretchr/testify/require"
)

type testProvider struct {
	dataRoot string
	tm       *tablet.Manager
	engine   *idgen.StorageEngine
	hookMgr  hooks.HookManager
}

func newTestProvider(t *testing.T, dataRoot string) *testProvider {
	return &testProvider{
		dataRoot: dataRoot,
		tm:       tablet.NewManager(),
		engine:   idgen.NewStorageEngine(idgen.DataDir{Path: dataRoot}),
		hookMgr:  hooks.NewHookManager(nil),
	}
}

func (p *testProvider) GetTabletManager() *tablet.Manager             { return p.tm }
func (p *testProvider) GetStorageEngine() *idgen.StorageEngine        { return p.engine }
func (p *testProvider) GetFilesystemHelper() internal.FilesystemHelper { return internal.New() }
func (p *testProvider) GetLogger() *slog.Logger                       { return slog.Default() }
func (p *testProvider) GetTracer() trace.Tracer                       { return noop.NewTracerProvider().Tracer("test") }
func (p *testProvider) GetHookManager() hooks.HookManager              { return p.hookMgr }
func (p *testProvider) DefaultTimeoutSeconds() int64                  { return 3600 }
func (p *testProvider) MaxLinkConcurrency() int                       { return 4 }

// buildRowsetOnDisk writes a real rowset under dir so selection/materialisation
// tests have actual files to hard-link.
func buildRowsetOnDisk(t *testing.T, dir string, id core.ID, tabletID int64, schemaHash uint32, version core.Version, rtype core.RowsetType, numRows int) core.RowsetMeta {
	t.Helper()
	require.NoError(t, internal.New().MkdirAll(dir, 0755))
	rows := make([][]byte, numRows)
	for i := range rows {
		rows[i] = []byte{byte(i)}
	}
	w := rowset.NewWriter(rowset.WriterContext{
		RowsetID:    id,
		TabletID:    tabletID,
		SchemaHash:  schemaHash,
		RowsetType:  rtype,
		RowsetState: core.RowsetStateVisible,
		Version:     version,
		Dir:         dir,
	})
	w.AddRows(rows)
	h, err := w.Build()
	require.NoError(t, err)
	return h.RowsetMeta()
}

func idFor(b byte) core.ID {
	var id core.ID
	id[0] = b
	return id
}

func TestMakeSnapshotFullLatestVersion(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)

	v1 := buildRowsetOnDisk(t, tabletDir, idFor(1), 10, 42, core.Version{Start: 0, End: 0}, core.RowsetTypeModern, 2)
	v2 := buildRowsetOnDisk(t, tabletDir, idFor(2), 10, 42, core.Version{Start: 1, End: 3}, core.RowsetTypeModern, 3)
	v3 := buildRowsetOnDisk(t, tabletDir, idFor(3), 10, 42, core.Version{Start: 4, End: 4}, core.RowsetTypeModern, 1)

	ref := tablet.NewRef(10, 42, []byte("schema"), tabletDir, core.TabletHeader{
		TabletID: 10, SchemaHash: 42,
		Visible: []core.RowsetMeta{v1, v2, v3},
	})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	req := &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, PreferredSnapshotVersion: core.SnapshotFormatV2}
	path, err := mgr.MakeSnapshot(context.Background(), req)
	require.NoError(t, err)
	require.DirExists(t, path)
	require.False(t, req.AllowIncrementalClone)

	schemaDir := filepath.Join(path, "10", "42")
	require.DirExists(t, schemaDir)
	require.FileExists(t, filepath.Join(schemaDir, "10.hdr"))

	loaded, err := loadHeader(internal.New(), schemaDir, 10)
	require.NoError(t, err)
	require.Len(t, loaded.Visible, 3)
	require.Empty(t, loaded.Incremental)
}

func TestMakeSnapshotFullExplicitOlderVersion(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)

	v1 := buildRowsetOnDisk(t, tabletDir, idFor(1), 10, 42, core.Version{Start: 0, End: 0}, core.RowsetTypeModern, 1)
	v2 := buildRowsetOnDisk(t, tabletDir, idFor(2), 10, 42, core.Version{Start: 1, End: 3}, core.RowsetTypeModern, 1)
	v3 := buildRowsetOnDisk(t, tabletDir, idFor(3), 10, 42, core.Version{Start: 4, End: 4}, core.RowsetTypeModern, 1)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Visible: []core.RowsetMeta{v1, v2, v3}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	version := int64(3)
	req := &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, Version: &version, PreferredSnapshotVersion: core.SnapshotFormatV2}
	path, err := mgr.MakeSnapshot(context.Background(), req)
	require.NoError(t, err)

	loaded, err := loadHeader(internal.New(), filepath.Join(path, "10", "42"), 10)
	require.NoError(t, err)
	require.Len(t, loaded.Visible, 2)
}

func TestMakeSnapshotVersionGreaterThanLive(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)
	v1 := buildRowsetOnDisk(t, tabletDir, idFor(1), 10, 42, core.Version{Start: 0, End: 0}, core.RowsetTypeModern, 1)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Visible: []core.RowsetMeta{v1}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	version := int64(99)
	req := &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, Version: &version}
	path, err := mgr.MakeSnapshot(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, "", path)
	require.Equal(t, core.KindBadInput, core.KindOf(err))
}

func TestMakeSnapshotIncrementalAllPresent(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)
	inc5 := buildRowsetOnDisk(t, tabletDir, idFor(5), 10, 42, core.Version{Start: 5, End: 5}, core.RowsetTypeModern, 1)
	inc6 := buildRowsetOnDisk(t, tabletDir, idFor(6), 10, 42, core.Version{Start: 6, End: 6}, core.RowsetTypeModern, 1)
	inc7 := buildRowsetOnDisk(t, tabletDir, idFor(7), 10, 42, core.Version{Start: 7, End: 7}, core.RowsetTypeModern, 1)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Incremental: []core.RowsetMeta{inc5, inc6, inc7}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	req := &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, MissingVersion: []int64{5, 7}, PreferredSnapshotVersion: core.SnapshotFormatV2}
	path, err := mgr.MakeSnapshot(context.Background(), req)
	require.NoError(t, err)
	require.True(t, req.AllowIncrementalClone)

	loaded, err := loadHeader(internal.New(), filepath.Join(path, "10", "42"), 10)
	require.NoError(t, err)
	require.Len(t, loaded.Incremental, 2)
	require.Empty(t, loaded.Visible)
}

func TestMakeSnapshotIncrementalOneMissing(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)
	inc5 := buildRowsetOnDisk(t, tabletDir, idFor(5), 10, 42, core.Version{Start: 5, End: 5}, core.RowsetTypeModern, 1)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Incremental: []core.RowsetMeta{inc5}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	req := &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, MissingVersion: []int64{5, 8}}
	path, err := mgr.MakeSnapshot(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, "", path)
	require.Equal(t, core.KindVersionNotFound, core.KindOf(err))
}

func TestMakeSnapshotV1NormalisesModernRowsets(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)
	v1 := buildRowsetOnDisk(t, tabletDir, idFor(1), 10, 42, core.Version{Start: 0, End: 0}, core.RowsetTypeModern, 4)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Visible: []core.RowsetMeta{v1}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	path, err := mgr.MakeSnapshot(context.Background(), &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, PreferredSnapshotVersion: core.SnapshotFormatV1})
	require.NoError(t, err)

	loaded, err := loadHeader(internal.New(), filepath.Join(path, "10", "42"), 10)
	require.NoError(t, err)
	require.Len(t, loaded.Visible, 1)
	require.Equal(t, core.RowsetTypeLegacy, loaded.Visible[0].RowsetType)

	converted := rowset.New(filepath.Join(path, "10", "42"), loaded.Visible[0])
	require.NoError(t, converted.Load(false))
	rows, err := converted.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// The snapshot copy is hard-linked to the live tablet's original
	// Modern segment files; converting it to Legacy in place must not
	// truncate the shared inode out from under the original.
	original := rowset.New(tabletDir, v1)
	require.NoError(t, original.Load(false))
	originalRows, err := original.Rows()
	require.NoError(t, err)
	require.Len(t, originalRows, 4)
}

func TestMakeSnapshotUnknownFormatFails(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)
	v1 := buildRowsetOnDisk(t, tabletDir, idFor(1), 10, 42, core.Version{Start: 0, End: 0}, core.RowsetTypeModern, 1)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Visible: []core.RowsetMeta{v1}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	_, err := mgr.MakeSnapshot(context.Background(), &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, PreferredSnapshotVersion: core.SnapshotFormatUnspecified})
	require.Error(t, err)
	require.Equal(t, core.KindInvalidSnapshotVersion, core.KindOf(err))
}

func TestReleaseSnapshotRefusesForeignPath(t *testing.T) {
	root := t.TempDir()
	p := newTestProvider(t, root)
	mgr := NewManager(p)

	err := mgr.ReleaseSnapshot(context.Background(), "/etc/passwd")
	require.Error(t, err)
	require.Equal(t, core.KindIllegalPath, core.KindOf(err))
}

func TestReleaseSnapshotRemovesOwnedPath(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)
	v1 := buildRowsetOnDisk(t, tabletDir, idFor(1), 10, 42, core.Version{Start: 0, End: 0}, core.RowsetTypeModern, 1)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Visible: []core.RowsetMeta{v1}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	path, err := mgr.MakeSnapshot(context.Background(), &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, PreferredSnapshotVersion: core.SnapshotFormatV2})
	require.NoError(t, err)
	require.DirExists(t, path)

	require.NoError(t, mgr.ReleaseSnapshot(context.Background(), path))
	require.NoDirExists(t, path)
}

func TestReleaseSnapshotTwiceFailsOnSecondCall(t *testing.T) {
	tabletDir := t.TempDir()
	p := newTestProvider(t, tabletDir)
	v1 := buildRowsetOnDisk(t, tabletDir, idFor(1), 10, 42, core.Version{Start: 0, End: 0}, core.RowsetTypeModern, 1)
	ref := tablet.NewRef(10, 42, nil, tabletDir, core.TabletHeader{Visible: []core.RowsetMeta{v1}})
	p.tm.RegisterTablet(ref)

	mgr := NewManager(p)
	path, err := mgr.MakeSnapshot(context.Background(), &core.SnapshotRequest{TabletID: 10, SchemaHash: 42, PreferredSnapshotVersion: core.SnapshotFormatV2})
	require.NoError(t, err)

	require.NoError(t, mgr.ReleaseSnapshot(context.Background(), path))

	err = mgr.ReleaseSnapshot(context.Background(), path)
	require.Error(t, err)
	require.Equal(t, core.KindDirNotExist, core.KindOf(err))
}

func TestConvertRowsetIdsPreservesCrossListSharing(t *testing.T) {
	cloneDir := t.TempDir()
	p := newTestProvider(t, cloneDir)

	shared := buildRowsetOnDisk(t, cloneDir, idFor(3), 5, 11, core.Version{Start: 3, End: 3}, core.RowsetTypeModern, 2)
	only := buildRowsetOnDisk(t, cloneDir, idFor(9), 5, 11, core.Version{Start: 0, End: 2}, core.RowsetTypeModern, 2)

	header := core.TabletHeader{
		TabletID:    5,
		SchemaHash:  11,
		Visible:     []core.RowsetMeta{only, shared},
		Incremental: []core.RowsetMeta{shared},
	}
	require.NoError(t, saveHeader(internal.New(), cloneDir, 77, header))

	mgr := NewManager(p)
	err := mgr.ConvertRowsetIds(context.Background(), cloneDir, 77, 99)
	require.NoError(t, err)

	rewritten, err := loadHeader(internal.New(), cloneDir, 77)
	require.NoError(t, err)
	require.Len(t, rewritten.Visible, 2)
	require.Len(t, rewritten.Incremental, 1)
	require.Equal(t, int64(77), rewritten.TabletID)
	require.EqualValues(t, 99, rewritten.SchemaHash)

	var sharedNewID core.ID
	for _, r := range rewritten.Visible {
		if r.Version == (core.Version{Start: 3, End: 3}) {
			sharedNewID = r.RowsetID
		}
	}
	require.False(t, sharedNewID.IsZero())
	require.Equal(t, sharedNewID, rewritten.Incremental[0].RowsetID)
	require.NotEqual(t, idFor(3), sharedNewID)
}
