package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampd-project/ampd/internal/controlendpoint"
	"github.com/ampd-project/ampd/internal/playlist"
	"github.com/ampd-project/ampd/internal/playstate"
	"github.com/ampd-project/ampd/internal/protocol"
)

type fakePlayer struct {
	playCalls     int
	lastFD        int
	resumeCalls   int
	pauseCalls    int
	stopCalls     int
	lastSeek      protocol.SeekPayload
	failPlay      bool
	lastVolume    float64
	setVolumeCall int
	lastMute      bool
	setMuteCall   int
}

func (f *fakePlayer) Play(fd int) error {
	f.playCalls++
	f.lastFD = fd
	if f.failPlay {
		return assert.AnError
	}
	return nil
}
func (f *fakePlayer) Resume() error { f.resumeCalls++; return nil }
func (f *fakePlayer) Pause() error  { f.pauseCalls++; return nil }
func (f *fakePlayer) Stop() error   { f.stopCalls++; return nil }
func (f *fakePlayer) Seek(p protocol.SeekPayload) error {
	f.lastSeek = p
	return nil
}
func (f *fakePlayer) SetVolume(level float64) error {
	f.setVolumeCall++
	f.lastVolume = level
	return nil
}
func (f *fakePlayer) SetMute(muted bool) error {
	f.setMuteCall++
	f.lastMute = muted
	return nil
}

type fakeReplier struct {
	replies     []protocol.Type
	errors      []string
	broadcasts  []protocol.Type
	streamed    map[int][]string
}

func newFakeReplier() *fakeReplier {
	return &fakeReplier{streamed: make(map[int][]string)}
}
func (f *fakeReplier) Reply(connID int, msgType protocol.Type, payload []byte) {
	f.replies = append(f.replies, msgType)
}
func (f *fakeReplier) ReplyError(connID int, message string) {
	f.errors = append(f.errors, message)
}
func (f *fakeReplier) Broadcast(event protocol.Type, position, duration int64, modes playstate.Modes) {
	f.broadcasts = append(f.broadcasts, event)
}
func (f *fakeReplier) StreamEntries(connID int, entries []string) {
	f.streamed[connID] = entries
}

var _ controlendpoint.Replier = (*fakeReplier)(nil)

func testTrack(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("fake audio bytes"), 0o644))
	return path
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakePlayer) {
	t.Helper()
	player := &fakePlayer{}
	logger := log.NewEntry(log.New())
	return New(player, playstate.Modes{}, logger), player
}

func TestPlayFromStoppedOpensFirstTrack(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"), testTrack(t, dir, "b.ogg"))

	r := newFakeReplier()
	o.Play(r, 1)

	assert.Equal(t, playstate.Playing, o.state)
	assert.Equal(t, 0, o.pl.Cursor())
	assert.Equal(t, 1, player.playCalls)
	assert.Equal(t, []protocol.Type{protocol.TypePlay}, r.broadcasts)
}

func TestPlayWhilePlayingIsNoOp(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"))
	o.Play(newFakeReplier(), 1)
	require.Equal(t, playstate.Playing, o.state)

	r := newFakeReplier()
	o.Play(r, 1)
	assert.Equal(t, 1, player.playCalls)
	assert.Empty(t, r.broadcasts)
}

func TestTogglePlayFlipsPlayingAndPaused(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"))

	r := newFakeReplier()
	o.TogglePlay(r, 1) // Stopped -> Playing
	assert.Equal(t, playstate.Playing, o.state)

	o.TogglePlay(r, 1) // Playing -> Paused
	assert.Equal(t, playstate.Paused, o.state)
	assert.Equal(t, 1, player.pauseCalls)

	o.TogglePlay(r, 1) // Paused -> Playing
	assert.Equal(t, playstate.Playing, o.state)
	assert.Equal(t, 1, player.resumeCalls)
}

func TestNextAdvancesCursorAndStopsAtEnd(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"), testTrack(t, dir, "b.ogg"))
	o.Play(newFakeReplier(), 1)

	r := newFakeReplier()
	o.Next(r, 1)
	assert.Equal(t, 1, o.pl.Cursor())
	assert.Equal(t, playstate.Playing, o.state)

	r2 := newFakeReplier()
	o.Next(r2, 1)
	assert.Equal(t, playstate.Stopped, o.state)
	assert.Contains(t, r2.broadcasts, protocol.TypeStop)
	assert.Equal(t, 2, player.stopCalls) // Stop() called once per Next invocation
	assert.Equal(t, playlist.NoCursor, o.pl.Cursor())
}

func TestPrevFromStoppedStartsAtCursorZero(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"), testTrack(t, dir, "b.ogg"))

	r := newFakeReplier()
	o.Prev(r, 1)

	assert.Equal(t, 0, o.pl.Cursor())
	assert.Equal(t, playstate.Playing, o.state)
}

func TestJumpToMissingTargetRepliesError(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.pl.Append("/a.ogg")

	r := newFakeReplier()
	o.Jump(r, 1, "/missing.ogg")

	assert.Len(t, r.errors, 1)
	assert.Equal(t, playstate.Stopped, o.state)
}

func TestFlushTruncatesAndAlwaysForcesStop(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"), testTrack(t, dir, "b.ogg"))
	o.Play(newFakeReplier(), 1)
	o.Next(newFakeReplier(), 1) // cursor=1, playing b.ogg

	// Flush while still Playing with trailing entries intact (cursor==1,
	// len stays 2) must still stop playback, per property 2.
	r := newFakeReplier()
	o.Flush(r, 1)
	assert.LessOrEqual(t, o.pl.Len(), o.pl.Cursor()+1)
	assert.Equal(t, playstate.Stopped, o.state)
	assert.Equal(t, 1, player.stopCalls)
	assert.Contains(t, r.broadcasts, protocol.TypeCommit)

	// Flush past a NoCursor state stays Stopped and does not call Stop again.
	o.pl.Clear()
	r2 := newFakeReplier()
	o.Flush(r2, 1)
	assert.Equal(t, playstate.Stopped, o.state)
	assert.Equal(t, 1, player.stopCalls)
}

func TestBeginAddCommitTransactionFlow(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	rA := newFakeReplier()
	o.Begin(rA, 1)
	assert.Equal(t, []protocol.Type{protocol.TypeBegin}, rA.replies)

	rB := newFakeReplier()
	o.Begin(rB, 2)
	assert.Len(t, rB.errors, 1)

	o.Add(newFakeReplier(), 1, "/x.ogg")
	assert.Equal(t, -1, o.pl.IndexOf("/x.ogg"), "scratch add must not touch the live playlist yet")

	rCommit := newFakeReplier()
	o.Commit(rCommit, 1, -1)
	assert.Equal(t, 0, o.pl.IndexOf("/x.ogg"))
	assert.Contains(t, rCommit.broadcasts, protocol.TypeCommit)
}

func TestConnectionCloseAbortsOwnedTransaction(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Begin(newFakeReplier(), 1)
	o.Add(newFakeReplier(), 1, "/p.ogg")

	o.ConnectionClosed(1)

	rShow := newFakeReplier()
	o.Show(rShow, 2)
	assert.Empty(t, rShow.streamed[2])

	rBegin := newFakeReplier()
	o.Begin(rBegin, 2)
	assert.Equal(t, []protocol.Type{protocol.TypeBegin}, rBegin.replies)
}

func TestAddWithoutTransactionMutatesLiveListDirectly(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	r := newFakeReplier()
	o.Add(r, 1, "/direct.ogg")

	assert.Equal(t, 0, o.pl.IndexOf("/direct.ogg"))
	assert.Contains(t, r.broadcasts, protocol.TypeAdd)
}

func TestHandleWorkerEventConsumeRemovesFinishedTrack(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t)
	o.modes.Consume = true
	o.pl.Append(testTrack(t, dir, "a.ogg"), testTrack(t, dir, "b.ogg"))
	o.Play(newFakeReplier(), 1)

	r := newFakeReplier()
	o.HandleWorkerEvent(r, protocol.WorkerEventPayload{Outcome: protocol.OutcomeFinished})

	assert.Equal(t, 1, o.pl.Len())
	assert.Equal(t, playstate.Playing, o.state)
}

func TestHandleWorkerEventConsumeToEmptyResetsCursor(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t)
	o.modes.Consume = true
	o.pl.Append(testTrack(t, dir, "a.ogg"))
	o.Play(newFakeReplier(), 1)

	r := newFakeReplier()
	o.HandleWorkerEvent(r, protocol.WorkerEventPayload{Outcome: protocol.OutcomeFinished})

	assert.Equal(t, 0, o.pl.Len())
	assert.Equal(t, playstate.Stopped, o.state)
	assert.Equal(t, playlist.NoCursor, o.pl.Cursor())
}

func TestHandleWorkerEventRepeatOneReplaysCurrent(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.modes.RepeatOne = true
	o.pl.Append(testTrack(t, dir, "a.ogg"))
	o.Play(newFakeReplier(), 1)

	o.HandleWorkerEvent(newFakeReplier(), protocol.WorkerEventPayload{Outcome: protocol.OutcomeFinished})

	assert.Equal(t, 0, o.pl.Cursor())
	assert.Equal(t, 2, player.playCalls)
}

func TestHandleWorkerEventStopsAtEndWithoutRepeatAll(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"))
	o.Play(newFakeReplier(), 1)

	r := newFakeReplier()
	o.HandleWorkerEvent(r, protocol.WorkerEventPayload{Outcome: protocol.OutcomeFinished})

	assert.Equal(t, playstate.Stopped, o.state)
	assert.Contains(t, r.broadcasts, protocol.TypeStop)
	assert.Equal(t, playlist.NoCursor, o.pl.Cursor())
}

func TestPlayReplaysPlaylistAfterNaturalEnd(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.pl.Append(testTrack(t, dir, "a.ogg"))
	o.Play(newFakeReplier(), 1)

	o.HandleWorkerEvent(newFakeReplier(), protocol.WorkerEventPayload{Outcome: protocol.OutcomeFinished})
	require.Equal(t, playstate.Stopped, o.state)
	require.Equal(t, playlist.NoCursor, o.pl.Cursor())

	o.Play(newFakeReplier(), 1)
	assert.Equal(t, playstate.Playing, o.state)
	assert.Equal(t, 0, o.pl.Cursor())
	assert.Equal(t, 2, player.playCalls)
}

func TestHandleWorkerEventRepeatAllWrapsToStart(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.modes.RepeatAll = true
	o.pl.Append(testTrack(t, dir, "a.ogg"))
	o.Play(newFakeReplier(), 1)

	o.HandleWorkerEvent(newFakeReplier(), protocol.WorkerEventPayload{Outcome: protocol.OutcomeFinished})

	assert.Equal(t, 0, o.pl.Cursor())
	assert.Equal(t, playstate.Playing, o.state)
	assert.Equal(t, 2, player.playCalls)
}

func TestHandleWorkerEventPositionUpdatesWithoutBroadcast(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	r := newFakeReplier()
	o.HandleWorkerEvent(r, protocol.WorkerEventPayload{Outcome: protocol.OutcomePosition, Position: 42, Duration: 180})

	assert.Equal(t, int64(42), o.position)
	assert.Equal(t, int64(180), o.duration)
	assert.Empty(t, r.broadcasts)
}

func TestHandleWorkerDiedSkipsCrashedTrackEvenWithRepeatOne(t *testing.T) {
	dir := t.TempDir()
	o, player := newTestOrchestrator(t)
	o.modes.RepeatOne = true
	o.pl.Append(testTrack(t, dir, "a.ogg"), testTrack(t, dir, "b.ogg"))
	o.Play(newFakeReplier(), 1)

	r := newFakeReplier()
	o.HandleWorkerDied(r)

	assert.Equal(t, 1, o.pl.Cursor())
	assert.Equal(t, playstate.Playing, o.state)
	assert.Contains(t, r.broadcasts, protocol.TypeError)
	assert.Contains(t, r.broadcasts, protocol.TypeNext)
	assert.Equal(t, 2, player.playCalls)
}

func TestStatusReportsCurrentTrackAndModes(t *testing.T) {
	dir := t.TempDir()
	o, _ := newTestOrchestrator(t)
	track := testTrack(t, dir, "a.ogg")
	o.pl.Append(track)
	o.Play(newFakeReplier(), 1)

	r := newFakeReplier()
	o.Status(r, 1)
	require.Equal(t, []protocol.Type{protocol.TypeStatusReply}, r.replies)
}
