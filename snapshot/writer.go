package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

type Writer struct {
	Dir string
}

// Write replaces the snapshot in Dir. The file is written aside and
// renamed so a crash never leaves a half-written snapshot.
func (w *Writer) Write(s Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(w.Dir, fileName)
	tmp, err := os.CreateTemp(w.Dir, fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(&s); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "encode snapshot")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
