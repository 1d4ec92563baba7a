// Package logging configures the process-wide structured logger shared by
// the main daemon, the control endpoint, and the player worker. It uses the
// package-level logrus pattern (log.SetLevel/log.WithField directly on the
// package logger, rather than threading a *logrus.Logger through every call
// site), with a small set of field-tagging helpers for the identifiers this
// daemon's components pass around (connection id, track path, codec name).
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the package-wide logger. component names the process
// ("main", "ctl", "worker") and is attached to every entry so multiplexed
// output (e.g. the main process's log interleaved with its worker's) stays
// attributable. debug enables verbose (Debug-level) output.
func Init(component string, debug bool) *log.Entry {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return log.WithField("component", component)
}

// Conn tags a log entry with a connection id — an opaque per-connection
// identifier, not a pointer or OS handle.
func Conn(entry *log.Entry, id int) *log.Entry {
	return entry.WithField("conn", id)
}

// Track tags a log entry with the playlist path under discussion.
func Track(entry *log.Entry, path string) *log.Entry {
	return entry.WithField("track", path)
}

// Codec tags a log entry with the name of the decoder handling a track.
func Codec(entry *log.Entry, name string) *log.Entry {
	return entry.WithField("codec", name)
}

// SetLevel sets the package-wide logrus level by name ("debug", "info",
// "warn", "error"); an empty or unrecognized name falls back to info. Used
// both at startup and by main's SIGHUP config reload, so verbosity can be
// raised or lowered without restarting the daemon.
func SetLevel(name string) {
	level, err := log.ParseLevel(name)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
