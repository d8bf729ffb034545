package assets

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

// LocalStore serves assets from a directory tree:
// <root>/<collection>/<name>.md.
type LocalStore struct {
	root   string
	logger *logger.Logger
}

// NewLocalStore creates a store over the given root directory. The directory
// is not required to exist; missing collections simply resolve to not found.
func NewLocalStore(root string, log *logger.Logger) *LocalStore {
	return &LocalStore{
		root:   root,
		logger: log.WithFields(zap.String("component", "assets-local")),
	}
}

// Get reads the named asset document from disk.
func (s *LocalStore) Get(_ context.Context, kind Kind, name string) (*Asset, error) {
	if !kind.Valid() {
		return nil, errors.BadRequest("unknown asset kind: " + string(kind))
	}
	if !validName(name) {
		return nil, errors.BadRequest("invalid asset name")
	}

	path := filepath.Join(s.root, kind.Collection(), name+assetExtension)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(string(kind), name)
		}
		return nil, errors.Wrap(err, "failed to stat asset")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read asset")
	}

	return &Asset{
		Kind:       kind,
		Name:       name,
		Content:    string(content),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

// List enumerates the asset names in a collection directory. A missing
// directory is an empty collection, not an error.
func (s *LocalStore) List(_ context.Context, kind Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, errors.BadRequest("unknown asset kind: " + string(kind))
	}

	entries, err := os.ReadDir(filepath.Join(s.root, kind.Collection()))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(err, "failed to list assets")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), assetExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), assetExtension))
	}
	sort.Strings(names)
	return names, nil
}
