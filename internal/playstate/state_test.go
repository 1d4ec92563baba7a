package playstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeRequestApply(t *testing.T) {
	assert.True(t, Set.Apply(false))
	assert.False(t, Unset.Apply(true))
	assert.True(t, Toggle.Apply(false))
	assert.False(t, Toggle.Apply(true))
	assert.True(t, Leave.Apply(true))
	assert.False(t, Leave.Apply(false))
}

func TestMergeIdempotentWhenAllLeave(t *testing.T) {
	m := Modes{RepeatOne: true, RepeatAll: false, Consume: true}
	before := m
	m.Merge(ModeUpdate{})
	assert.Equal(t, before, m)
}

func TestPlayTransitions(t *testing.T) {
	next, resume, ev := Play(Stopped)
	assert.Equal(t, Playing, next)
	assert.False(t, resume)
	assert.Equal(t, EventPlay, ev)

	next, resume, ev = Play(Paused)
	assert.Equal(t, Playing, next)
	assert.True(t, resume)
	assert.Equal(t, EventPlay, ev)

	next, _, ev = Play(Playing)
	assert.Equal(t, Playing, next)
	assert.Equal(t, EventNone, ev)
}

func TestTogglePlayTransitions(t *testing.T) {
	next, _, ev := TogglePlay(Playing)
	assert.Equal(t, Paused, next)
	assert.Equal(t, EventPause, ev)

	next, resume, ev := TogglePlay(Paused)
	assert.Equal(t, Playing, next)
	assert.True(t, resume)
	assert.Equal(t, EventPlay, ev)

	next, resume, ev = TogglePlay(Stopped)
	assert.Equal(t, Playing, next)
	assert.False(t, resume)
	assert.Equal(t, EventPlay, ev)
}

func TestPauseOnlyFromPlaying(t *testing.T) {
	next, ok := Pause(Playing)
	assert.True(t, ok)
	assert.Equal(t, Paused, next)

	_, ok = Pause(Paused)
	assert.False(t, ok)
	_, ok = Pause(Stopped)
	assert.False(t, ok)
}

func TestStopNoopWhenAlreadyStopped(t *testing.T) {
	_, ok := Stop(Stopped)
	assert.False(t, ok)

	next, ok := Stop(Playing)
	assert.True(t, ok)
	assert.Equal(t, Stopped, next)
}
