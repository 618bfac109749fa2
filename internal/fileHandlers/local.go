package fileHandlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore writes blobs to a directory served under publicURL.
type LocalStore struct {
	dir       string
	publicURL string
	mutex     sync.Mutex
}

func NewLocalStore(dir string, publicURL string) (*LocalStore, error) {
	// make folders if they don't exist yet
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir, publicURL: publicURL}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, bool, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return "", false, err
	}
	url := s.publicURL + "/" + key

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// check if a blob with same key exists already
	_, err = os.Stat(fullPath)
	if err == nil {
		return url, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, err
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", false, err
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return "", false, err
	}

	return url, true, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	err = os.Remove(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalStore) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", errors.New("invalid blob key")
	}
	return filepath.Join(s.dir, key), nil
}
