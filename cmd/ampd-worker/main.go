// Command ampd-worker is the player worker process: it owns the audio
// device, decodes the track a Play(fd) message hands it (choosing the codec
// by sniffing the file's leading bytes), and reports
// outcomes back over the socket it inherited from main. It never touches
// the filesystem path space directly — every track arrives as an
// already-open fd.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ampd-project/ampd/internal/event"
	"github.com/ampd-project/ampd/internal/logging"
	"github.com/ampd-project/ampd/internal/playerworker"
)

// workerSocketFD is where main lands the socketpair end via
// exec.Cmd.ExtraFiles: fd 0-2 are stdin/stdout/stderr, so the first extra
// file is fd 3.
const workerSocketFD = 3

const pollInterval = 250 * time.Millisecond

func main() {
	logger := logging.Init("worker", os.Getenv("AMPD_DEBUG") != "")

	// The worker never writes to a client socket directly, but ignoring
	// SIGPIPE process-wide keeps it consistent with main in case a future
	// codec collaborator opens one.
	signal.Ignore(syscall.SIGPIPE)

	loop := event.New()
	w := playerworker.New(loop, workerSocketFD, logger)
	defer w.Close()

	for !w.Done() {
		if err := loop.RunOnce(pollInterval); err != nil {
			logger.WithError(err).Error("event loop error")
			os.Exit(1)
		}
	}
}
