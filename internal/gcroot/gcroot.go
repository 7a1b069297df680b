// Package gcroot registers garbage-collector roots for discovered
// derivations, so a derivation identified during enumeration survives store
// garbage collection until something builds it.
package gcroot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Registrar links derivation paths into a roots directory. A nil Registrar
// is valid and registers nothing; New returns nil when no directory is
// configured.
type Registrar struct {
	dir string
}

// New returns a Registrar writing into dir, or nil if dir is empty.
func New(dir string) *Registrar {
	if dir == "" {
		return nil
	}
	return &Registrar{dir: dir}
}

// Register links drvPath into the roots directory under its store base name.
// It is idempotent: an existing root is left untouched. Registration may
// cover derivations already registered by an earlier run; that is harmless.
func (r *Registrar) Register(drvPath string) error {
	if r == nil {
		return nil
	}
	root := filepath.Join(r.dir, filepath.Base(drvPath))
	if _, err := os.Lstat(root); err == nil {
		return nil
	}
	if err := os.Symlink(drvPath, root); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("registering GC root %s: %w", root, err)
	}
	return nil
}
