package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visforge/forge"
)

func TestStore_SaveLoadDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "visforge.db")
	store, err := NewStore(path, "vis")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, path, store.Path())
	ctx := context.Background()

	_, err = store.Load(ctx, "main")
	assert.True(t, errors.Is(err, forge.ErrSaveNotFound))
	assert.Error(t, store.Save(ctx, "", &forge.SaveFile{}))

	require.NoError(t, store.Save(ctx, "main", &forge.SaveFile{Version: forge.SaveVersion, Resources: map[string]uint64{"vis": 1}}))
	require.NoError(t, store.Save(ctx, "main", &forge.SaveFile{Version: forge.SaveVersion, Resources: map[string]uint64{"vis": 2}}))
	require.NoError(t, store.Save(ctx, "b-side", &forge.SaveFile{Version: forge.SaveVersion}))

	save, err := store.Load(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), save.Resources["vis"])

	slots, err := store.Slots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-side", "main"}, slots)

	deleted, err := store.Delete(ctx, "main")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = store.Delete(ctx, "main")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_ReopenKeepsSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visforge.db")
	store, err := NewStore(path, "vis")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "main", &forge.SaveFile{SaveID: "kept", Version: forge.SaveVersion}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path, "vis")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	save, err := reopened.Load(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "kept", save.SaveID)
}
