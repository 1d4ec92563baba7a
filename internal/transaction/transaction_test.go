package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginLocksOutOtherOwners(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Begin(1))
	assert.ErrorIs(t, tx.Begin(2), ErrLocked)
}

func TestAddRejectsNonOwner(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Begin(1))
	require.NoError(t, tx.Add(1, "/x.ogg"))
	assert.ErrorIs(t, tx.Add(2, "/y.ogg"), ErrLocked)
}

func TestAddWithoutBeginFails(t *testing.T) {
	tx := New()
	assert.ErrorIs(t, tx.Add(1, "/x.ogg"), ErrNoTransaction)
}

func TestCommitReturnsScratchAndResets(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Begin(1))
	require.NoError(t, tx.Add(1, "/x.ogg"))
	require.NoError(t, tx.Add(1, "/y.ogg"))

	entries, err := tx.Commit(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/x.ogg", "/y.ogg"}, entries)
	assert.False(t, tx.IsOpen())
	assert.Equal(t, NoOwner, tx.Owner())
}

func TestCommitByNonOwnerFails(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Begin(1))
	_, err := tx.Commit(2)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestAbortIfOwnerOnlyAbortsMatchingOwner(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Begin(1))
	require.NoError(t, tx.Add(1, "/p.ogg"))

	tx.AbortIfOwner(2) // different connection closing; must not touch tx
	assert.True(t, tx.IsOpen())
	assert.Equal(t, []string{"/p.ogg"}, tx.Scratch())

	tx.AbortIfOwner(1)
	assert.False(t, tx.IsOpen())
	assert.Empty(t, tx.Scratch())
}

func TestReopenByCurrentOwnerIsIdempotent(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Begin(1))
	require.NoError(t, tx.Add(1, "/p.ogg"))
	require.NoError(t, tx.Begin(1))
	assert.Equal(t, []string{"/p.ogg"}, tx.Scratch())
}
