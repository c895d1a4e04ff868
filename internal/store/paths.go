package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Paths locates the files of one knowledge base.
type Paths struct {
	Dir      string
	Index    string
	Docs     string
	Metadata string
	Lock     string

	// StaleIndexes are the index files of the other kinds. They are left
	// behind when storage.index_kind changes.
	StaleIndexes []string
}

// NewPaths returns the file locations under dir for an index of kind.
func NewPaths(dir string, kind IndexKind) Paths {
	p := Paths{
		Dir:      dir,
		Index:    filepath.Join(dir, IndexFileName(kind)),
		Docs:     filepath.Join(dir, DocStoreFile),
		Metadata: filepath.Join(dir, MetadataFile),
		Lock:     filepath.Join(dir, LockFile),
	}
	for _, other := range []IndexKind{IndexFlat, IndexHNSW} {
		if f := filepath.Join(dir, IndexFileName(other)); f != p.Index {
			p.StaleIndexes = append(p.StaleIndexes, f)
		}
	}
	return p
}

// EnsureDir creates the data directory.
func (p Paths) EnsureDir() error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists reports whether any of the three data files is present. A
// directory without them is a fresh knowledge base.
func (p Paths) Exists() bool {
	for _, f := range []string{p.Index, p.Docs, p.Metadata} {
		if _, err := os.Stat(f); err == nil {
			return true
		}
	}
	return false
}

// RemoveFiles deletes the index files of every kind plus the document and
// metadata files. Missing files are not an error. The lock file is left
// alone.
func (p Paths) RemoveFiles() error {
	return removeAll(append([]string{p.Index, p.Docs, p.Metadata}, p.StaleIndexes...))
}

// RemoveStaleIndexes deletes index files written under another index kind.
func (p Paths) RemoveStaleIndexes() error {
	return removeAll(p.StaleIndexes)
}

func removeAll(files []string) error {
	var errs []error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
