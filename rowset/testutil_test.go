package rowset

import (
	"io"
	"os"
)

// copyFileForTest stands in for a real hard-link helper (internal.FilesystemHelper
// in the full module) so rowset's own tests don't need to depend on that package.
func copyFileForTest(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
