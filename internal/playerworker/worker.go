package playerworker

import (
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	log "github.com/sirupsen/logrus"

	"github.com/ampd-project/ampd/internal/event"
	"github.com/ampd-project/ampd/internal/frame"
	"github.com/ampd-project/ampd/internal/logging"
	"github.com/ampd-project/ampd/internal/protocol"
)

// positionTickInterval is how often a position update goes out while a
// track plays, at least once a second.
const positionTickInterval = time.Second

// trackSession is the one track the worker may have open at a time; main
// never sends a second Play before this one reports a terminal outcome.
type trackSession struct {
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	finished chan struct{}
}

// Worker is the player worker's decode-and-dispatch loop: it reads
// WorkerPlay/Resume/Pause/Stop/Seek/Volume/Mute frames from main over conn
// and reports WorkerEvent frames back, driven entirely by loop's
// single-threaded cooperative model. The only blocking points outside it are
// the audio-device write, which happens inside beep's own callback goroutine
// invisible to this loop, and the short open(2) of a track file, which
// happens in main before the fd is ever handed here.
type Worker struct {
	conn      *frame.Conn
	loop      *event.Loop
	log       *log.Entry
	volume    *softwareVolume
	current   *trackSession
	timerID   int
	timerLive bool
	closed    bool
}

// Done reports whether the socket to main has closed, so cmd/ampd-worker's
// drive loop knows when to exit.
func (w *Worker) Done() bool {
	return w.closed
}

// New wraps fd, the worker-side end of the socketpair to main, and
// registers it with loop.
func New(loop *event.Loop, fd int, logger *log.Entry) *Worker {
	w := &Worker{conn: frame.New(fd), loop: loop, log: logger, volume: newSoftwareVolume()}
	loop.Register(fd, event.Read, w.onReady)
	return w
}

// Close stops any playback and closes the socket to main.
func (w *Worker) Close() error {
	w.stopCurrent()
	w.loop.Unregister(w.conn.FD())
	return w.conn.Close()
}

func (w *Worker) onReady(fd int, readable, writable bool) {
	if writable {
		if progress := w.conn.Flush(); progress.Closed {
			w.log.Warn("worker link write failed, main socket closed")
			w.closed = true
			return
		}
	}
	if readable {
		if _, err := w.conn.FillInput(); err != nil {
			w.log.WithError(err).Warn("main socket closed")
			w.closed = true
			return
		}
		for {
			msg, ok, err := w.conn.ReadOne()
			if err != nil {
				w.log.WithError(err).Warn("worker framing error")
				w.closed = true
				return
			}
			if !ok {
				break
			}
			w.dispatch(msg)
		}
	}
	w.syncInterest()
}

func (w *Worker) syncInterest() {
	interest := event.Read
	if w.conn.PendingOut() {
		interest |= event.Write
	}
	w.loop.Modify(w.conn.FD(), interest)
}

func (w *Worker) dispatch(msg frame.Message) {
	switch msg.Type {
	case protocol.TypeWorkerPlay:
		w.handlePlay(msg.FD)
	case protocol.TypeWorkerResume:
		w.handleResume()
	case protocol.TypeWorkerPause:
		w.handlePause()
	case protocol.TypeWorkerStop:
		w.handleStop()
	case protocol.TypeWorkerSeek:
		w.handleSeek(msg.Payload)
	case protocol.TypeWorkerVolume:
		w.handleVolume(msg.Payload)
	case protocol.TypeWorkerMute:
		w.handleMute(msg.Payload)
	default:
		w.log.WithField("type", msg.Type).Warn("worker received unexpected message type")
	}
}

func (w *Worker) reportEvent(ev protocol.WorkerEventPayload) {
	w.conn.Compose(protocol.TypeWorkerEvent, 0, -1, ev.Encode())
	w.syncInterest()
}

func (w *Worker) handlePlay(fd int) {
	w.stopCurrent()

	f := os.NewFile(uintptr(fd), "track")
	streamer, format, kind, err := decodeTrack(f)
	if err != nil {
		_ = f.Close()
		w.reportEvent(protocol.WorkerEventPayload{Outcome: protocol.OutcomeError, Message: err.Error()})
		return
	}
	logging.Codec(w.log, kind.String()).Debug("decoding track")

	if err := negotiateDevice(format.SampleRate); err != nil {
		_ = streamer.Close()
		w.reportEvent(protocol.WorkerEventPayload{Outcome: protocol.OutcomeError, Message: err.Error()})
		return
	}

	var playStreamer beep.Streamer = streamer
	if format.SampleRate != currentDeviceRate() {
		playStreamer = beep.Resample(4, format.SampleRate, currentDeviceRate(), streamer)
	}
	ctrl := &beep.Ctrl{Streamer: playStreamer}
	w.volume.effect.Streamer = ctrl

	finished := make(chan struct{})
	speaker.Play(beep.Seq(w.volume.effect, beep.Callback(func() { close(finished) })))

	w.current = &trackSession{file: f, streamer: streamer, format: format, ctrl: ctrl, finished: finished}
	w.armPositionTimer()
}

func (w *Worker) armPositionTimer() {
	w.timerID = w.loop.AddTimer(positionTickInterval, w.onPositionTick)
	w.timerLive = true
}

func (w *Worker) cancelPositionTimer() {
	if w.timerLive {
		w.loop.CancelTimer(w.timerID)
		w.timerLive = false
	}
}

func (w *Worker) onPositionTick() {
	w.timerLive = false
	cur := w.current
	if cur == nil {
		return
	}
	select {
	case <-cur.finished:
		w.finishCurrent()
		return
	default:
	}
	speaker.Lock()
	pos := cur.format.SampleRate.D(cur.streamer.Position())
	total := cur.format.SampleRate.D(cur.streamer.Len())
	speaker.Unlock()
	w.reportEvent(protocol.WorkerEventPayload{
		Outcome:  protocol.OutcomePosition,
		Position: int64(pos.Seconds()),
		Duration: int64(total.Seconds()),
	})
	w.armPositionTimer()
}

func (w *Worker) finishCurrent() {
	cur := w.current
	w.current = nil
	_ = cur.streamer.Close()
	_ = cur.file.Close()
	w.reportEvent(protocol.WorkerEventPayload{Outcome: protocol.OutcomeFinished})
}

// stopCurrent silently tears down any in-flight track without reporting an
// outcome, used both by an explicit Stop and to discard a stale track
// before a new Play (main never sends two outstanding Plays, but a defensive
// stop here keeps the speaker's mixer from ever holding two streams).
func (w *Worker) stopCurrent() {
	if w.current == nil {
		return
	}
	speaker.Lock()
	speaker.Clear()
	speaker.Unlock()
	cur := w.current
	w.current = nil
	w.cancelPositionTimer()
	_ = cur.streamer.Close()
	_ = cur.file.Close()
}

func (w *Worker) handleStop() {
	if w.current == nil {
		return
	}
	w.stopCurrent()
	w.reportEvent(protocol.WorkerEventPayload{Outcome: protocol.OutcomeStopped})
}

func (w *Worker) handlePause() {
	if w.current == nil {
		return
	}
	speaker.Lock()
	w.current.ctrl.Paused = true
	speaker.Unlock()
}

func (w *Worker) handleResume() {
	if w.current == nil {
		return
	}
	speaker.Lock()
	w.current.ctrl.Paused = false
	speaker.Unlock()
}

func (w *Worker) handleSeek(payload []byte) {
	cur := w.current
	if cur == nil {
		return
	}
	p, err := protocol.DecodeSeek(payload)
	if err != nil {
		w.log.WithError(err).Warn("malformed seek payload")
		return
	}
	speaker.Lock()
	target := seekTargetSamples(cur, p)
	seekErr := cur.streamer.Seek(target)
	speaker.Unlock()
	if seekErr != nil {
		w.log.WithError(seekErr).Warn("seek not supported by current codec")
	}
}

// seekTargetSamples reads cur.streamer's Position/Len, so callers must hold
// speaker.Lock() the same way they must for the Seek call that follows.
func seekTargetSamples(cur *trackSession, p protocol.SeekPayload) int {
	length := cur.streamer.Len()
	var target int
	switch {
	case p.Percent:
		target = int(float64(length) * float64(p.Position) / 100)
	case p.Relative:
		target = cur.streamer.Position() + cur.format.SampleRate.N(time.Duration(p.Position)*time.Second)
	default:
		target = cur.format.SampleRate.N(time.Duration(p.Position) * time.Second)
	}
	if target < 0 {
		target = 0
	}
	if length > 0 && target > length {
		target = length
	}
	return target
}

func (w *Worker) handleVolume(payload []byte) {
	p, err := protocol.DecodeVolume(payload)
	if err != nil {
		w.log.WithError(err).Warn("malformed volume payload")
		return
	}
	w.volume.SetLevel(p.Level)
}

func (w *Worker) handleMute(payload []byte) {
	p, err := protocol.DecodeMute(payload)
	if err != nil {
		w.log.WithError(err).Warn("malformed mute payload")
		return
	}
	w.volume.SetMuted(p.Muted)
}
