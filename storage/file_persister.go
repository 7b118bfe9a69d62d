// Package storage persists rendered output.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Persister writes the contents of data to path.
type Persister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// FilePersister will persist files to a filesystem, the local disk unless
// told otherwise.
type FilePersister struct {
	fs afero.Fs
}

// NewFilePersister returns a FilePersister writing to fs; a nil fs means
// the local disk.
func NewFilePersister(fs afero.Fs) *FilePersister {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FilePersister{fs: fs}
}

// Persist replaces the file at path with the contents of data.
func (l *FilePersister) Persist(ctx context.Context, path string, data io.Reader) (err error) {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	cp := filepath.Clean(path)

	dir := filepath.Dir(cp)
	if err = l.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := l.fs.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, cerr)
		}
	}()

	bf := bufio.NewWriter(f)

	if _, err := io.Copy(bf, data); err != nil {
		return fmt.Errorf("copying data to file: %w", err)
	}

	if err := bf.Flush(); err != nil {
		return fmt.Errorf("flushing data to disk: %w", err)
	}

	return nil
}
