package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

type localConfig struct {
	Dir string `json:"dir"`
}

// localStore keeps one JSON file per document.
type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	return &localStore{dir: config.Dir}, nil
}

func (s *localStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	_ = ctx
	path, err := s.path(docID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(docID, raw)
}

func (s *localStore) Save(ctx context.Context, snap *model.Snapshot) error {
	_ = ctx
	path, err := s.path(snap.DocumentID)
	if err != nil {
		return err
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".snap-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *localStore) Close() error {
	return nil
}

func (s *localStore) path(docID string) (string, error) {
	if err := validateKey(docID); err != nil {
		return "", err
	}
	if strings.Contains(docID, "/") || strings.Contains(docID, "\\") || strings.HasPrefix(docID, ".") {
		return "", fmt.Errorf("invalid document id %q: %w", docID, appErr.ErrInvalid)
	}
	return filepath.Join(s.dir, docID+".json"), nil
}

func (s *localStore) ensureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}
