//go:build linux

package presence

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/ampd-project/ampd/internal/playstate"
	"github.com/ampd-project/ampd/internal/protocol"
)

// Adapter publishes org.mpris.MediaPlayer2 over the session bus, backed by
// a Source (the main process's orchestrator).
type Adapter struct {
	source Source
	server *server.Server
}

// New starts an MPRIS adapter for source. The D-Bus server runs on its own
// goroutine, outside this process's single-threaded event loop: MPRIS calls
// arrive from an external bus connection, not from internal/event's poll
// loop.
func New(source Source) (*Adapter, error) {
	a := &Adapter{source: source}
	a.server = server.NewServer("ampd", &rootAdapter{}, &playerAdapter{source: source, volume: 1.0})
	go func() {
		_ = a.server.Listen()
	}()
	return a, nil
}

// Close stops the MPRIS adapter and releases its D-Bus connection.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

type rootAdapter struct{}

func (r *rootAdapter) Raise() error           { return nil }
func (r *rootAdapter) Quit() error            { return nil }
func (r *rootAdapter) CanQuit() (bool, error) { return false, nil }
func (r *rootAdapter) CanRaise() (bool, error) { return false, nil }
func (r *rootAdapter) HasTrackList() (bool, error) { return false, nil }
func (r *rootAdapter) Identity() (string, error)   { return "ampd", nil }

//nolint:revive // method name required by the MPRIS interface
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/opus"}, nil
}

type playerAdapter struct {
	source Source
	volume float64
}

func (p *playerAdapter) Next() error     { p.source.Next(noopReplier{}, presenceConnID); return nil }
func (p *playerAdapter) Previous() error { p.source.Prev(noopReplier{}, presenceConnID); return nil }
func (p *playerAdapter) Pause() error    { p.source.Pause(noopReplier{}, presenceConnID); return nil }
func (p *playerAdapter) PlayPause() error {
	p.source.TogglePlay(noopReplier{}, presenceConnID)
	return nil
}
func (p *playerAdapter) Stop() error { p.source.Stop(noopReplier{}, presenceConnID); return nil }

func (p *playerAdapter) Play() error {
	if p.source.State() == playstate.Stopped {
		p.source.Play(noopReplier{}, presenceConnID)
		return nil
	}
	p.source.TogglePlay(noopReplier{}, presenceConnID)
	return nil
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	seconds := int64(time.Duration(offset) * time.Microsecond / time.Second)
	p.source.Seek(noopReplier{}, presenceConnID, protocol.SeekPayload{Position: seconds, Relative: true})
	return nil
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	seconds := int64(time.Duration(position) * time.Microsecond / time.Second)
	p.source.Seek(noopReplier{}, presenceConnID, protocol.SeekPayload{Position: seconds})
	return nil
}

//nolint:revive // method name required by the MPRIS interface
func (p *playerAdapter) OpenUri(_ string) error { return nil }

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.source.State() {
	case playstate.Playing:
		return types.PlaybackStatusPlaying, nil
	case playstate.Paused:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (p *playerAdapter) Rate() (float64, error)        { return 1.0, nil }
func (p *playerAdapter) SetRate(_ float64) error       { return nil }
func (p *playerAdapter) MinimumRate() (float64, error) { return 1.0, nil }
func (p *playerAdapter) MaximumRate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) Volume() (float64, error) { return p.volume, nil }

// SetVolume forwards to the worker-bound volume/mute messages
// (internal/orchestrator.SetVolume/SetMute, internal/playerlink,
// internal/playerworker's softwareVolume): MPRIS has no separate mute
// property, so a level of zero is also reported as Mute.
func (p *playerAdapter) SetVolume(level float64) error {
	p.volume = level
	if err := p.source.SetVolume(level); err != nil {
		return err
	}
	return p.source.SetMute(level <= 0)
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	track, ok := p.source.CurrentTrack()
	if !ok {
		return types.Metadata{}, nil
	}
	meta := types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(track)),
		Length:  types.Microseconds(p.source.Duration() * int64(time.Second/time.Microsecond)),
		Title:   filepath.Base(track),
	}
	if artPath := FindAlbumArt(track); artPath != "" {
		meta.ArtUrl = "file://" + artPath
	}
	return meta, nil
}

func (p *playerAdapter) Position() (int64, error) {
	return p.source.Position() * int64(time.Second/time.Microsecond), nil
}

func (p *playerAdapter) CanGoNext() (bool, error)     { return p.source.HasNext(), nil }
func (p *playerAdapter) CanGoPrevious() (bool, error) { return p.source.HasPrev(), nil }
func (p *playerAdapter) CanPlay() (bool, error)       { return !p.source.PlaylistEmpty(), nil }
func (p *playerAdapter) CanPause() (bool, error)      { return true, nil }
func (p *playerAdapter) CanSeek() (bool, error)       { return true, nil }
func (p *playerAdapter) CanControl() (bool, error)    { return true, nil }

// LoopStatus and SetLoopStatus implement the optional
// OrgMprisMediaPlayer2PlayerAdapterLoopStatus interface. Shuffle has no
// equivalent in the playback modes this daemon models (repeat-one,
// repeat-all, consume only), so that optional interface is left
// unimplemented rather than faked.
func (p *playerAdapter) LoopStatus() (types.LoopStatus, error) {
	modes := p.source.Modes()
	switch {
	case modes.RepeatOne:
		return types.LoopStatusTrack, nil
	case modes.RepeatAll:
		return types.LoopStatusPlaylist, nil
	default:
		return types.LoopStatusNone, nil
	}
}

func (p *playerAdapter) SetLoopStatus(status types.LoopStatus) error {
	update := playstate.ModeUpdate{}
	switch status {
	case types.LoopStatusNone:
		update.RepeatOne = playstate.Unset
		update.RepeatAll = playstate.Unset
	case types.LoopStatusTrack:
		update.RepeatOne = playstate.Set
		update.RepeatAll = playstate.Unset
	case types.LoopStatusPlaylist:
		update.RepeatOne = playstate.Unset
		update.RepeatAll = playstate.Set
	}
	p.source.Mode(noopReplier{}, presenceConnID, update)
	return nil
}

func formatTrackID(path string) string {
	h := fnv.New64a()
	h.Write([]byte(path))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
