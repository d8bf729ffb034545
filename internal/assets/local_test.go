package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

func newTestStore(t *testing.T) (*LocalStore, string) {
	t.Helper()
	root := t.TempDir()
	return NewLocalStore(root, logger.Default()), root
}

func seedAsset(t *testing.T, root string, kind Kind, name, content string) {
	t.Helper()
	dir := filepath.Join(root, kind.Collection())
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+assetExtension), []byte(content), 0o644))
}

func TestLocalStoreGet(t *testing.T) {
	store, root := newTestStore(t)
	seedAsset(t, root, KindSkill, "code-review", "# Code Review\nReview the diff.")

	asset, err := store.Get(context.Background(), KindSkill, "code-review")
	require.NoError(t, err)

	assert.Equal(t, KindSkill, asset.Kind)
	assert.Equal(t, "code-review", asset.Name)
	assert.Equal(t, "# Code Review\nReview the diff.", asset.Content)
	assert.Equal(t, int64(len(asset.Content)), asset.Size)
}

func TestLocalStoreGetNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), KindAgent, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestLocalStoreGetRejectsTraversal(t *testing.T) {
	store, _ := newTestStore(t)

	for _, name := range []string{"", "..", "../secret", "a/b", `a\b`} {
		_, err := store.Get(context.Background(), KindSkill, name)
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err), "name %q", name)
	}
}

func TestLocalStoreGetUnknownKind(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), Kind("widget"), "x")
	require.Error(t, err)
	assert.True(t, errors.IsBadRequest(err))
}

func TestLocalStoreList(t *testing.T) {
	store, root := newTestStore(t)
	seedAsset(t, root, KindFramework, "bdd", "behavior driven")
	seedAsset(t, root, KindFramework, "tdd", "test driven")
	seedAsset(t, root, KindSkill, "unrelated", "other collection")

	names, err := store.List(context.Background(), KindFramework)
	require.NoError(t, err)
	assert.Equal(t, []string{"bdd", "tdd"}, names)
}

func TestLocalStoreListMissingCollection(t *testing.T) {
	store, _ := newTestStore(t)

	names, err := store.List(context.Background(), KindAgent)
	require.NoError(t, err)
	assert.Empty(t, names)
}
