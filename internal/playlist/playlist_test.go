package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsEmpty(t *testing.T) {
	p := New()
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, NoCursor, p.Cursor())
}

func TestAppendPreservesCursor(t *testing.T) {
	p := New()
	p.Append("/a.ogg", "/b.ogg")
	require.NoError(t, p.SetCursor(1))
	p.Append("/c.ogg")
	assert.Equal(t, 1, p.Cursor())
	assert.Equal(t, 3, p.Len())
}

func TestSetCursorRejectsOutOfRange(t *testing.T) {
	p := New()
	p.Append("/a.ogg")
	assert.ErrorIs(t, p.SetCursor(5), ErrIndexOutOfRange)
	assert.ErrorIs(t, p.SetCursor(-2), ErrIndexOutOfRange)
	assert.NoError(t, p.SetCursor(NoCursor))
}

func TestTruncateAfterResetsCursorWhenPastEnd(t *testing.T) {
	p := New()
	p.Append("/a.ogg", "/b.ogg", "/c.ogg")
	require.NoError(t, p.SetCursor(2))

	n := p.TruncateAfter(1)
	assert.Equal(t, 2, n)
	assert.Equal(t, NoCursor, p.Cursor(), "cursor must reset, forcing stop")
}

func TestTruncateAfterKeepsCursorWhenStillInRange(t *testing.T) {
	p := New()
	p.Append("/a.ogg", "/b.ogg", "/c.ogg", "/d.ogg")
	require.NoError(t, p.SetCursor(1))

	n := p.TruncateAfter(2)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, p.Cursor())
}

func TestRetreatClampsAtZero(t *testing.T) {
	p := New()
	p.Append("/a.ogg", "/b.ogg")
	require.NoError(t, p.SetCursor(0))
	p.Retreat()
	assert.Equal(t, 0, p.Cursor())
}

func TestRemoveCurrentConsume(t *testing.T) {
	p := New()
	p.Append("/a.ogg", "/b.ogg", "/c.ogg")
	require.NoError(t, p.SetCursor(1))
	ok := p.RemoveCurrent()
	require.True(t, ok)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 1, p.Cursor())
	entry, ok := p.Current()
	assert.True(t, ok)
	assert.Equal(t, "/c.ogg", entry)
}

func TestReplaceFromNegativeAppends(t *testing.T) {
	p := New()
	p.Append("/a.ogg", "/b.ogg")
	p.ReplaceFrom(-1, []string{"/x.ogg"})
	assert.Equal(t, []string{"/a.ogg", "/b.ogg", "/x.ogg"}, p.Entries())
}

func TestReplaceFromNonNegativeReplacesTail(t *testing.T) {
	p := New()
	p.Append("/a.ogg", "/b.ogg", "/c.ogg")
	p.ReplaceFrom(1, []string{"/x.ogg", "/y.ogg"})
	assert.Equal(t, []string{"/a.ogg", "/x.ogg", "/y.ogg"}, p.Entries())
}

func TestCursorInvariantUnderSequence(t *testing.T) {
	// Cursor stays in {NoCursor} ∪ [0, length) over a fixed operation sequence.
	p := New()
	ops := func() {
		p.Append("/a.ogg", "/b.ogg", "/c.ogg")
		require.NoError(t, p.SetCursor(0))
		p.Advance()
		p.Advance()
		p.Retreat()
		_ = p.TruncateAfter(0)
		p.Append("/d.ogg")
	}
	ops()
	c := p.Cursor()
	assert.True(t, c == NoCursor || (c >= 0 && c < p.Len()))
}
