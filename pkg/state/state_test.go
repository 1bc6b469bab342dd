package state

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOpen_CreatesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sqlite")

	m1, err := Open(path)
	require.NoError(t, err)
	m1.Close()

	m2, err := Open(path)
	require.NoError(t, err)
	defer m2.Close()

	states, err := m2.ListStates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestCreateAndGetState(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		return CreateState(ctx, tx, State{ID: "s1", CreatedAt: 1000, Label: "install zlib", Slot: 0})
	})
	require.NoError(t, err)

	got, err := m.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "install zlib", got.Label)
	assert.Equal(t, 0, got.Slot)
}

func TestGetState_NotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetState(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSetAndGetCurrent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := CreateState(ctx, tx, State{ID: "s1", CreatedAt: 1, Label: "base", Slot: 0}); err != nil {
			return err
		}
		return SetCurrent(ctx, tx, "s1")
	})
	require.NoError(t, err)

	current, err := m.GetCurrentStateID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", current)

	err = m.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := CreateState(ctx, tx, State{ID: "s2", CreatedAt: 2, Label: "upgrade", Slot: 1}); err != nil {
			return err
		}
		return SetCurrent(ctx, tx, "s2")
	})
	require.NoError(t, err)

	current, err = m.GetCurrentStateID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s2", current)
}

func TestGetCurrentStateID_EmptyBeforeFirstCommit(t *testing.T) {
	m := newTestManager(t)
	current, err := m.GetCurrentStateID(context.Background())
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestSlots_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := CreateState(ctx, tx, State{ID: "s1", CreatedAt: 1, Label: "base", Slot: 0}); err != nil {
			return err
		}
		return SetSlot(ctx, tx, 0, "s1")
	})
	require.NoError(t, err)

	slotState, err := m.GetSlot(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "s1", slotState)

	empty, err := m.GetSlot(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAddFileObject_DedupesAndIncrementsRefCount(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	obj := FileObject{Hash: "deadbeef", Size: 1024}

	var firstDup, secondDup bool
	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		firstDup, err = AddFileObject(ctx, tx, obj, 100)
		return err
	})
	require.NoError(t, err)
	assert.False(t, firstDup)

	err = m.withWriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		secondDup, err = AddFileObject(ctx, tx, obj, 101)
		return err
	})
	require.NoError(t, err)
	assert.True(t, secondDup)

	got, err := m.GetFileObject(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RefCount)
}

func TestDecrementFileObjectRef_NeverGoesNegative(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := AddFileObject(ctx, tx, FileObject{Hash: "h1", Size: 1}, 100); err != nil {
			return err
		}
		if err := DecrementFileObjectRef(ctx, tx, "h1"); err != nil {
			return err
		}
		return DecrementFileObjectRef(ctx, tx, "h1")
	})
	require.NoError(t, err)

	got, err := m.GetFileObject(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.RefCount)
}

func TestKeepSetHashes_ExcludesZeroRefCount(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := AddFileObject(ctx, tx, FileObject{Hash: "kept", Size: 1}, 1); err != nil {
			return err
		}
		if _, err := AddFileObject(ctx, tx, FileObject{Hash: "dropped", Size: 1}, 1); err != nil {
			return err
		}
		return DecrementFileObjectRef(ctx, tx, "dropped")
	})
	require.NoError(t, err)

	hashes, err := m.KeepSetHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, hashes)
}

func TestVerifyFileWithTracking_SuccessResetsAttempts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := AddFileObject(ctx, tx, FileObject{Hash: "h1", Size: 1}, 1); err != nil {
			return err
		}
		if err := VerifyFileWithTracking(ctx, tx, "h1", false, 2); err != nil {
			return err
		}
		return VerifyFileWithTracking(ctx, tx, "h1", true, 3)
	})
	require.NoError(t, err)

	got, err := m.GetFileObject(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.VerifyAttempts)
	require.NotNil(t, got.LastVerified)
	assert.Equal(t, int64(3), *got.LastVerified)
}

func TestQuarantineFileObject_ExcludesFromFailedList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := AddFileObject(ctx, tx, FileObject{Hash: "h1", Size: 1}, 1); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if err := VerifyFileWithTracking(ctx, tx, "h1", false, int64(i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	failed, err := m.FailedVerificationObjects(ctx, 3)
	require.NoError(t, err)
	assert.Contains(t, failed, "h1")

	err = m.withWriteTx(ctx, func(tx *sql.Tx) error {
		return QuarantineFileObject(ctx, tx, "h1")
	})
	require.NoError(t, err)

	failed, err = m.FailedVerificationObjects(ctx, 3)
	require.NoError(t, err)
	assert.NotContains(t, failed, "h1")
}
