package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/storage"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_SaveAndGetAccessory(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	accessory := &storage.Accessory{
		NID:   "n-1",
		Name:  "Living Room",
		Model: "SD-100",
	}
	require.NoError(t, store.SaveAccessory(ctx, accessory))
	assert.NotEmpty(t, accessory.ID)

	got, err := store.GetAccessory(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", got.Name)
	assert.Equal(t, "SD-100", got.Model)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStorage_SaveAccessory_Upsert(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccessory(ctx, &storage.Accessory{NID: "n-1", Name: "Old", Model: "SD-100"}))
	require.NoError(t, store.SaveAccessory(ctx, &storage.Accessory{NID: "n-1", Name: "New", Model: "SD-200"}))

	got, err := store.GetAccessory(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.Equal(t, "SD-200", got.Model)

	all, err := store.ListAccessories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStorage_GetAccessory_NotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetAccessory(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrAccessoryNotFound)
}

func TestSQLiteStorage_ListAccessories(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccessory(ctx, &storage.Accessory{NID: "n-1", Name: "One", Model: "SD-100"}))
	require.NoError(t, store.SaveAccessory(ctx, &storage.Accessory{NID: "n-2", Name: "Two", Model: "SD-100"}))

	all, err := store.ListAccessories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStorage_DeleteAccessory(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccessory(ctx, &storage.Accessory{NID: "n-1", Name: "One", Model: "SD-100"}))
	require.NoError(t, store.DeleteAccessory(ctx, "n-1"))

	_, err := store.GetAccessory(ctx, "n-1")
	assert.ErrorIs(t, err, storage.ErrAccessoryNotFound)

	assert.ErrorIs(t, store.DeleteAccessory(ctx, "n-1"), storage.ErrAccessoryNotFound)
}

func TestSQLiteStorage_DeviceState(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccessory(ctx, &storage.Accessory{NID: "n-1", Name: "One", Model: "SD-100"}))

	state := amos.State{IsOn: true, RunSeconds: 90, LiquidLevel: 40, Locked: true}
	require.NoError(t, store.SaveDeviceState(ctx, "n-1", state))

	got, err := store.GetDeviceState(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, state, *got)

	// Snapshot is replaced wholesale on the next save.
	state = amos.State{IsOn: false, RunSeconds: 30, LiquidLevel: 5, Locked: false}
	require.NoError(t, store.SaveDeviceState(ctx, "n-1", state))

	got, err = store.GetDeviceState(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, state, *got)
}

func TestSQLiteStorage_GetDeviceState_NotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetDeviceState(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrAccessoryNotFound)
}

func TestSQLiteStorage_ImplementsInterface(t *testing.T) {
	var _ storage.Storage = (*SQLiteStorage)(nil)
}
