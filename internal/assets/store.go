// Package assets serves the named documents (skills, agents, frameworks) the
// gateway exposes to collaborators.
package assets

import (
	"context"
	"strings"
	"time"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

// Kind classifies an asset by its collection.
type Kind string

const (
	KindSkill     Kind = "skill"
	KindAgent     Kind = "agent"
	KindFramework Kind = "framework"
)

// assetExtension is the on-disk / object-key suffix for asset documents.
const assetExtension = ".md"

// Collection returns the storage prefix for a kind.
func (k Kind) Collection() string {
	return string(k) + "s"
}

// Valid reports whether the kind is one of the known collections.
func (k Kind) Valid() bool {
	switch k {
	case KindSkill, KindAgent, KindFramework:
		return true
	}
	return false
}

// Asset is one named document.
type Asset struct {
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Store resolves assets by kind and name.
type Store interface {
	// Get returns the named asset, or a NotFound error when absent.
	Get(ctx context.Context, kind Kind, name string) (*Asset, error)

	// List returns the names available in a collection, sorted.
	List(ctx context.Context, kind Kind) ([]string, error)
}

// Provide builds the store selected by configuration: a local directory tree
// by default, S3-compatible object storage when the mode says so.
func Provide(cfg config.AssetsConfig, log *logger.Logger) (Store, error) {
	switch cfg.Mode {
	case "", "local":
		return NewLocalStore(cfg.LocalRoot, log), nil
	case "s3":
		return NewS3Store(cfg, log)
	default:
		return nil, errors.InternalError("unknown assets mode: "+cfg.Mode, nil)
	}
}

// validName rejects empty names and anything that could escape the
// collection (path separators, traversal).
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}
