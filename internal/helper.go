// Package internal provides the mockable filesystem-operations layer the
// snapshot package is built on: the directory, header-file, link and
// removal operations of the Materialiser, ReleaseSnapshot and the Id
// Rebinder go through this interface. Rowset segment files are read,
// written and removed by the rowset package directly, not through it.
package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// FilesystemHelper is the seam between the snapshot subsystem and the real
// operating system.
type FilesystemHelper interface {
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	RemoveAll(path string) error
	Remove(path string) error
	ReadDir(name string) ([]os.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Rename(oldpath, newpath string) error
	Create(name string) (*os.File, error)
	Open(name string) (*os.File, error)
	Canonicalize(path string) (string, error)

	CopyFile(src, dst string) error
	LinkOrCopyFile(src, dst string) error

	// LinkFiles hard-links (falling back to copy) a batch of (src, dst)
	// pairs concurrently, bounded to maxConcurrency in-flight operations.
	LinkFiles(pairs []FilePair, maxConcurrency int) error
}

// FilePair is one (source, destination) hard-link request.
type FilePair struct {
	Src, Dst string
}

type helper struct{}

// New returns the real, os-backed FilesystemHelper.
func New() FilesystemHelper { return helper{} }

func (helper) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

func (helper) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (helper) RemoveAll(path string) error { return os.RemoveAll(path) }

func (helper) Remove(path string) error { return os.Remove(path) }

func (helper) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

func (helper) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (helper) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (helper) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (helper) Create(name string) (*os.File, error) { return os.Create(name) }

func (helper) Open(name string) (*os.File, error) { return os.Open(name) }

func (helper) Canonicalize(path string) (string, error) { return filepath.Abs(path) }

func (h helper) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source file %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination file %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy data from %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// LinkOrCopyFile hard-links src to dst, falling back to a full copy when
// linking fails (e.g. across filesystems).
func (h helper) LinkOrCopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination directory for link %s: %w", dst, err)
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	return h.CopyFile(src, dst)
}

// LinkFiles fans a batch of link requests out across a bounded pool of
// goroutines using golang.org/x/sync/errgroup. The first error encountered
// is returned, and links that have not started yet are skipped (those
// already in flight finish) — a single failed link fails materialisation
// as a whole rather than producing a partial snapshot.
func (h helper) LinkFiles(pairs []FilePair, maxConcurrency int) error {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(maxConcurrency)
	for _, p := range pairs {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return h.LinkOrCopyFile(p.Src, p.Dst)
		})
	}
	return g.Wait()
}
