package sources

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a test status store with a fixed clock
func createTestStatusStore(t *testing.T) *StatusStore {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	store, err := NewStatusStore(dbPath)
	require.NoError(t, err, "should create status store")
	store.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { store.Close() })
	return store
}

// TestStatusStore_Empty verifies a new database has no statuses
func TestStatusStore_Empty(t *testing.T) {
	store := createTestStatusStore(t)
	ctx := context.Background()

	all, err := store.ListStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = store.GetStatus(ctx, "Bell")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

// TestStatusStore_RecordSuccess verifies counts and timestamps are stored
func TestStatusStore_RecordSuccess(t *testing.T) {
	store := createTestStatusStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "Bell", 12, 4))

	status, err := store.GetStatus(ctx, "bell")
	require.NoError(t, err)
	assert.Equal(t, "Bell", status.Company)
	assert.Equal(t, 12, status.LastItemCount)
	assert.Equal(t, 4, status.LastAdded)
	assert.Equal(t, 0, status.ErrorCount)
	assert.True(t, status.OK())
	require.NotNil(t, status.LastRunAt)
	assert.True(t, status.LastRunAt.Equal(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)))
}

// TestStatusStore_FailureCounting verifies consecutive failures accumulate
// and a success resets them
func TestStatusStore_FailureCounting(t *testing.T) {
	store := createTestStatusStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "Rogers", 7, 7))
	require.NoError(t, store.RecordFailure(ctx, "Rogers", errors.New("status 503")))
	require.NoError(t, store.RecordFailure(ctx, "Rogers", errors.New("status 404")))

	status, err := store.GetStatus(ctx, "Rogers")
	require.NoError(t, err)
	assert.False(t, status.OK())
	require.NotNil(t, status.LastError)
	assert.Equal(t, "status 404", *status.LastError)
	assert.Equal(t, 2, status.ErrorCount)
	assert.Equal(t, 7, status.LastItemCount, "failures keep the last counts")

	require.NoError(t, store.RecordSuccess(ctx, "Rogers", 0, 0))
	status, err = store.GetStatus(ctx, "Rogers")
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.Equal(t, 0, status.ErrorCount)
	assert.Equal(t, 0, status.LastItemCount)
}

// TestStatusStore_ListStatus verifies every company is listed
func TestStatusStore_ListStatus(t *testing.T) {
	store := createTestStatusStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "Bell", 3, 3))
	require.NoError(t, store.RecordFailure(ctx, "Eastlink", nil))

	all, err := store.ListStatus(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 3, all["Bell"].LastAdded)
	require.NotNil(t, all["Eastlink"].LastError)
	assert.Equal(t, "unknown error", *all["Eastlink"].LastError)
	assert.Equal(t, 1, all["Eastlink"].ErrorCount)
}

// TestStatusStore_Reopen verifies statuses persist across connections
func TestStatusStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	ctx := context.Background()

	store1, err := NewStatusStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.RecordSuccess(ctx, "SaskTel", 5, 2))
	require.NoError(t, store1.Close())

	store2, err := NewStatusStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	status, err := store2.GetStatus(ctx, "SaskTel")
	require.NoError(t, err)
	assert.Equal(t, 5, status.LastItemCount)
}
