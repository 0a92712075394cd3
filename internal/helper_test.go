package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkOrCopyFile(t *testing.T) {
	h := New()
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	src := filepath.Join(srcDir, "a.dat")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	dst := filepath.Join(dstDir, "nested", "a.dat")
	require.NoError(t, h.LinkOrCopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	require.False(t, info.IsDir())
}

func TestLinkFilesBounded(t *testing.T) {
	h := New()
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	var pairs []FilePair
	for i := 0; i < 20; i++ {
		src := filepath.Join(srcDir, "f"+string(rune('a'+i)))
		require.NoError(t, os.WriteFile(src, []byte{byte(i)}, 0644))
		pairs = append(pairs, FilePair{Src: src, Dst: filepath.Join(dstDir, "f"+string(rune('a'+i)))})
	}

	require.NoError(t, h.LinkFiles(pairs, 4))

	for i := 0; i < 20; i++ {
		got, err := os.ReadFile(filepath.Join(dstDir, "f"+string(rune('a'+i))))
		require.NoError(t, err)
		require.Equal(t, byte(i), got[0])
	}
}

func TestLinkFilesAbortsOnFailure(t *testing.T) {
	h := New()
	dstDir := t.TempDir()

	pairs := []FilePair{
		{Src: "/nonexistent/source/file", Dst: filepath.Join(dstDir, "out")},
	}
	err := h.LinkFiles(pairs, 2)
	require.Error(t, err)
}

func TestCopyFilePreservesContent(t *testing.T) {
	h := New()
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	src := filepath.Join(srcDir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	dst := filepath.Join(dstDir, "dst.txt")

	require.NoError(t, h.CopyFile(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}
