// Command ampd is the main orchestrator process: it owns the playlist and
// play state, serves the control socket, and talks to a player worker
// subprocess over a socketpair.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ampd-project/ampd/internal/config"
	"github.com/ampd-project/ampd/internal/controlendpoint"
	"github.com/ampd-project/ampd/internal/event"
	"github.com/ampd-project/ampd/internal/logging"
	"github.com/ampd-project/ampd/internal/orchestrator"
	"github.com/ampd-project/ampd/internal/playerlink"
	"github.com/ampd-project/ampd/internal/playstate"
	"github.com/ampd-project/ampd/internal/presence"
	"github.com/ampd-project/ampd/internal/protocol"
	"github.com/ampd-project/ampd/internal/snapshot"
)

// exit codes.
const (
	exitOK              = 0
	exitFatalStartup    = 1
	exitWorkerUnrecover = 2
)

// maxWorkerRestarts bounds how many times in total a dying worker is
// respawned before giving up; past this, the worker is treated as
// unrecoverable. The count covers the daemon's whole lifetime and is never
// reset.
const maxWorkerRestarts = 5

// pollInterval bounds how long a single event.Loop.RunOnce call blocks when
// nothing else schedules a nearer deadline; it just keeps the shutdown flag
// and SIGHUP reload responsive.
const pollInterval = 250 * time.Millisecond

func main() {
	logger := logging.Init("main", os.Getenv("AMPD_DEBUG") != "")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("failed to load configuration")
		os.Exit(exitFatalStartup)
	}
	if os.Getenv("AMPD_DEBUG") == "" && cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(exitFatalStartup)
	}

	os.Exit(d.run())
}

// daemon bundles the main process's long-lived collaborators.
type daemon struct {
	cfg  *config.Config
	log  *log.Entry
	loop *event.Loop
	orch *orchestrator.Orchestrator
	link *playerlink.Link
	ep   *controlendpoint.Endpoint
	pres io.Closer

	// shutdown and reload are set by the signal-handling goroutine and read
	// from the event loop's own goroutine, so both must be atomic.
	shutdown atomic.Bool
	reload   atomic.Bool

	// workerRestarts and fatalWorker are only ever touched from the event
	// loop's goroutine (playerlink's onDeath callback runs synchronously
	// inside RunOnce), so no synchronization is needed for them.
	workerRestarts int
	fatalWorker    bool
}

// linkShim breaks the orchestrator<->playerlink construction cycle:
// orchestrator.New needs a PlayerLink before playerlink.New (which itself
// needs the orchestrator as its EventSink) can run. It forwards to d.link,
// populated once construction finishes; nothing calls through it before
// then.
type linkShim struct{ d *daemon }

func (s *linkShim) Play(fd int) error                 { return s.d.link.Play(fd) }
func (s *linkShim) Resume() error                     { return s.d.link.Resume() }
func (s *linkShim) Pause() error                      { return s.d.link.Pause() }
func (s *linkShim) Stop() error                       { return s.d.link.Stop() }
func (s *linkShim) Seek(p protocol.SeekPayload) error { return s.d.link.Seek(p) }
func (s *linkShim) SetVolume(level float64) error     { return s.d.link.SetVolume(level) }
func (s *linkShim) SetMute(muted bool) error          { return s.d.link.SetMute(muted) }

func newDaemon(cfg *config.Config, logger *log.Entry) (*daemon, error) {
	// SIGPIPE would otherwise kill the process the first time a write hits
	// a peer that already closed its end.
	signal.Ignore(syscall.SIGPIPE)

	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}

	loop := event.New()
	d := &daemon{cfg: cfg, log: logger, loop: loop}

	workerFD, err := spawnWorker(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	modes := playstate.Modes{RepeatOne: cfg.RepeatOne, RepeatAll: cfg.RepeatAll, Consume: cfg.Consume}

	orch := orchestrator.New(&linkShim{d}, modes, logger)
	ep := controlendpoint.New(loop, socketPath, orch, logger)
	d.orch, d.ep = orch, ep
	d.link = playerlink.New(loop, workerFD, orch, ep, d.handleWorkerDeath, logging.Conn(logger, 0))

	if cfg.SnapshotPath != "" {
		if restored, err := snapshot.Load(cfg.SnapshotPath); err == nil {
			orch.RestorePlaylist(restored)
		} else if !os.IsNotExist(err) {
			logger.WithError(err).Warn("failed to restore playlist snapshot")
		}
	}

	if err := ep.Start(); err != nil {
		return nil, fmt.Errorf("control endpoint: %w", err)
	}

	if adapter, err := presence.New(orch); err != nil {
		logger.WithError(err).Warn("MPRIS presence adapter unavailable")
	} else {
		d.pres = adapter
	}

	d.installSignalHandlers()
	return d, nil
}

// spawnWorker creates a socketpair, exec's the worker binary with the
// worker-side fd inherited via exec.Cmd.ExtraFiles (landing at fd 3 in the
// child), and returns the main-side fd. The worker runs with main's own
// credentials (no privileges are dropped) and only receives tracks as
// already-open fds.
func spawnWorker(cfg *config.Config, logger *log.Entry) (int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("socketpair: %w", err)
	}
	mainFD, workerFD := fds[0], fds[1]

	workerPath := cfg.WorkerPath
	if workerPath == "" {
		if self, err := os.Executable(); err == nil {
			workerPath = filepath.Join(filepath.Dir(self), "ampd-worker")
		} else {
			workerPath = "ampd-worker"
		}
	}

	workerConnFile := os.NewFile(uintptr(workerFD), "worker-sock")
	cmd := exec.Command(workerPath)
	cmd.ExtraFiles = []*os.File{workerConnFile}
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout

	if err := cmd.Start(); err != nil {
		_ = unix.Close(mainFD)
		_ = unix.Close(workerFD)
		return -1, fmt.Errorf("start worker: %w", err)
	}
	_ = workerConnFile.Close() // parent keeps mainFD only; the child inherited its own copy across fork

	logger.WithField("pid", cmd.Process.Pid).Info("player worker started")
	return mainFD, nil
}

func (d *daemon) installSignalHandlers() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				d.reload.Store(true)
			default:
				d.shutdown.Store(true)
			}
		}
	}()
}

// run drives the event loop until a shutdown signal arrives or the player
// worker proves unrecoverable, and returns the process exit code.
func (d *daemon) run() int {
	for {
		if d.shutdown.Load() {
			d.shutdownGracefully()
			return exitOK
		}
		if d.fatalWorker {
			d.log.Error("player worker unrecoverable, shutting down")
			d.shutdownGracefully()
			return exitWorkerUnrecover
		}
		if d.reload.Load() {
			d.reload.Store(false)
			d.reloadConfig()
		}

		if err := d.loop.RunOnce(pollInterval); err != nil {
			d.log.WithError(err).Error("event loop error")
			return exitWorkerUnrecover
		}
	}
}

// handleWorkerDeath is playerlink's onDeath callback: the worker process
// exited or its socket otherwise became unusable. It respawns the worker
// and tells the orchestrator to resume at the next track, per the
// audio-device-error recovery rule. Once more than maxWorkerRestarts deaths
// have occurred in total it gives up and lets run exit with
// exitWorkerUnrecover.
func (d *daemon) handleWorkerDeath() {
	d.workerRestarts++
	if d.workerRestarts > maxWorkerRestarts {
		d.log.WithField("attempts", d.workerRestarts).Error("player worker keeps dying, giving up")
		d.fatalWorker = true
		return
	}

	d.log.WithField("attempt", d.workerRestarts).Warn("player worker died, restarting")
	workerFD, err := spawnWorker(d.cfg, d.log)
	if err != nil {
		d.log.WithError(err).Error("failed to respawn player worker")
		d.fatalWorker = true
		return
	}
	d.link = playerlink.New(d.loop, workerFD, d.orch, d.ep, d.handleWorkerDeath, logging.Conn(d.log, 0))
	d.orch.HandleWorkerDied(d.ep)
}

func (d *daemon) reloadConfig() {
	cfg, err := config.Load()
	if err != nil {
		d.log.WithError(err).Warn("config reload failed, keeping previous configuration")
		return
	}
	if cfg.LogLevel != d.cfg.LogLevel {
		logging.SetLevel(cfg.LogLevel)
	}
	d.cfg = cfg
	d.log.Info("configuration reloaded")
}

// shutdownGracefully stops the player, drains client output buffers with a
// short deadline, closes every connection, unlinks the socket file, and
// optionally snapshots the playlist.
func (d *daemon) shutdownGracefully() {
	d.log.Info("shutting down")
	_ = d.link.Stop()

	drainDeadline := time.Now().Add(time.Second)
	for time.Now().Before(drainDeadline) {
		if err := d.loop.RunOnce(20 * time.Millisecond); err != nil {
			break
		}
	}

	d.ep.Close()
	_ = d.link.Close()
	if d.pres != nil {
		_ = d.pres.Close()
	}
	if d.cfg.SnapshotPath != "" {
		if err := snapshot.Save(d.cfg.SnapshotPath, d.orch.Playlist()); err != nil {
			d.log.WithError(err).Warn("failed to save playlist snapshot")
		}
	}
}
