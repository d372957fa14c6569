package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiskStore implements DigestStore on the local filesystem.
// It is safe for concurrent use: writes go to a temp file in the same
// directory and are renamed into place, so concurrent Puts of the same
// digest converge on one complete file.
type DiskStore struct {
	root       string
	quarantine string
}

// NewDiskStore creates a store rooted at root, with quarantine as the
// relocation target for flagged files. Both directories are created on
// first use.
func NewDiskStore(root, quarantine string) *DiskStore {
	return &DiskStore{root: root, quarantine: quarantine}
}

func (s *DiskStore) Put(digest string, data []byte) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}

	dst := s.Path(digest)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(s.root, "."+digest+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (s *DiskStore) Delete(digest string) error {
	if err := os.Remove(s.Path(digest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", digest, err)
	}
	return nil
}

func (s *DiskStore) Path(digest string) string {
	return filepath.Join(s.root, digest)
}

func (s *DiskStore) Exists(digest string) bool {
	info, err := os.Stat(s.Path(digest))
	return err == nil && info.Mode().IsRegular()
}

func (s *DiskStore) Quarantine(digest, name string) error {
	if err := os.MkdirAll(s.quarantine, 0o755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}
	if err := os.Rename(s.Path(digest), filepath.Join(s.quarantine, name)); err != nil {
		return fmt.Errorf("quarantine %s: %w", digest, err)
	}
	return nil
}

var _ DigestStore = (*DiskStore)(nil)
