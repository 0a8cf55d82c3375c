// Package contentstore maps packages to their extracted files on disk.
package contentstore

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

// DirStore serves package content from a directory holding one sub-directory per content root.
type DirStore struct {
	root string
}

func NewDirStore(conf *core.Config) *DirStore {
	return &DirStore{root: conf.Content.Root}
}

func (s *DirStore) Open(pkg scorm.Package) (fs.FS, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(pkg.ContentRoot))
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "opening content root %q", pkg.ContentRoot)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("content root %q is not a directory", pkg.ContentRoot)
	}
	return os.DirFS(dir), nil
}
