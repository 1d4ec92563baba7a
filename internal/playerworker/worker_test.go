package playerworker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ampd-project/ampd/internal/event"
	"github.com/ampd-project/ampd/internal/frame"
	"github.com/ampd-project/ampd/internal/protocol"
)

func newTestWorker(t *testing.T) (*Worker, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fds[1]) })

	w := New(event.New(), fds[0], log.NewEntry(log.New()))
	return w, fds[1]
}

func openFDForContent(t *testing.T, content []byte) int {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return int(f.Fd())
}

func TestHandleStopWithoutCurrentIsNoOp(t *testing.T) {
	w, _ := newTestWorker(t)
	w.handleStop()
	assert.Nil(t, w.current)
}

func TestHandlePauseResumeWithoutCurrentIsNoOp(t *testing.T) {
	w, _ := newTestWorker(t)
	w.handlePause()
	w.handleResume()
	assert.Nil(t, w.current)
}

func TestHandleVolumeUpdatesSoftwareVolume(t *testing.T) {
	w, _ := newTestWorker(t)
	w.handleVolume(protocol.VolumePayload{Level: 0.4}.Encode())
	assert.InDelta(t, 0.4, w.volume.level, 0.0001)
}

func TestHandleMuteUpdatesSoftwareVolume(t *testing.T) {
	w, _ := newTestWorker(t)
	w.handleMute(protocol.MutePayload{Muted: true}.Encode())
	assert.True(t, w.volume.muted)
}

func TestHandlePlayWithUnrecognizedFormatReportsError(t *testing.T) {
	w, peerFD := newTestWorker(t)
	trackFD := openFDForContent(t, []byte("not an audio file at all"))

	w.handlePlay(trackFD)

	peer := frame.New(peerFD)
	defer peer.Close()
	_, err := peer.FillInput()
	require.NoError(t, err)
	msg, ok, err := peer.ReadOne()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, protocol.TypeWorkerEvent, msg.Type)

	ev, err := protocol.DecodeWorkerEvent(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeError, ev.Outcome)
	assert.Nil(t, w.current)
}

// fakeSeekableStreamer is just enough of beep.StreamSeekCloser for
// seekTargetSamples, which only calls Len and Position.
type fakeSeekableStreamer struct {
	length, position int
}

func (f *fakeSeekableStreamer) Stream([][2]float64) (int, bool) { return 0, false }
func (f *fakeSeekableStreamer) Err() error                      { return nil }
func (f *fakeSeekableStreamer) Len() int                        { return f.length }
func (f *fakeSeekableStreamer) Position() int                   { return f.position }
func (f *fakeSeekableStreamer) Seek(int) error                  { return nil }
func (f *fakeSeekableStreamer) Close() error                    { return nil }

func TestSeekTargetSamplesClampsToTrackLength(t *testing.T) {
	cur := &trackSession{
		format:   beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2},
		streamer: &fakeSeekableStreamer{length: 44100 * 10},
	}

	target := seekTargetSamples(cur, protocol.SeekPayload{Position: 150, Percent: true})
	assert.Equal(t, 44100*10, target)

	target = seekTargetSamples(cur, protocol.SeekPayload{Position: -5})
	assert.Equal(t, 0, target)
}
