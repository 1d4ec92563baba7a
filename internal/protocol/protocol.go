// Package protocol defines the closed message-type enum and wire payload
// layouts used by both the client-facing control socket and the privileged
// main<->player socket.
//
// Payloads use a fixed native-endian layout of packed fields; strings are
// NUL-terminated within the payload bytes.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Type is the closed message-type enum carried in every frame header.
type Type uint32

const (
	TypeInvalid Type = iota
	TypePlay
	TypeTogglePlay
	TypePause
	TypeStop
	TypeNext
	TypePrev
	TypeJump
	TypeSeek
	TypeMode
	TypeFlush
	TypeBegin
	TypeAdd
	TypeCommit
	TypeMonitor
	TypeStatus
	TypeShow

	// Response/event variants.
	TypeError
	TypePlaylistEntry
	TypeStatusReply
	TypeMonitorEvent

	// Player-bound-only variants, used on the privileged socket and never
	// accepted from a client.
	TypeWorkerPlay
	TypeWorkerResume
	TypeWorkerPause
	TypeWorkerStop
	TypeWorkerSeek
	TypeWorkerEvent
	TypeWorkerVolume
	TypeWorkerMute
)

func (t Type) String() string {
	switch t {
	case TypePlay:
		return "Play"
	case TypeTogglePlay:
		return "TogglePlay"
	case TypePause:
		return "Pause"
	case TypeStop:
		return "Stop"
	case TypeNext:
		return "Next"
	case TypePrev:
		return "Prev"
	case TypeJump:
		return "Jump"
	case TypeSeek:
		return "Seek"
	case TypeMode:
		return "Mode"
	case TypeFlush:
		return "Flush"
	case TypeBegin:
		return "Begin"
	case TypeAdd:
		return "Add"
	case TypeCommit:
		return "Commit"
	case TypeMonitor:
		return "Monitor"
	case TypeStatus:
		return "Status"
	case TypeShow:
		return "Show"
	case TypeError:
		return "Error"
	case TypePlaylistEntry:
		return "PlaylistEntry"
	case TypeStatusReply:
		return "StatusReply"
	case TypeMonitorEvent:
		return "MonitorEvent"
	case TypeWorkerPlay:
		return "WorkerPlay"
	case TypeWorkerResume:
		return "WorkerResume"
	case TypeWorkerPause:
		return "WorkerPause"
	case TypeWorkerStop:
		return "WorkerStop"
	case TypeWorkerSeek:
		return "WorkerSeek"
	case TypeWorkerEvent:
		return "WorkerEvent"
	case TypeWorkerVolume:
		return "WorkerVolume"
	case TypeWorkerMute:
		return "WorkerMute"
	default:
		return "Invalid"
	}
}

// ErrWrongSize is returned by a payload Decode when the buffer's length
// doesn't match the type's expected layout; the control endpoint decodes
// before dispatch and treats this as a protocol error, closing the
// connection.
var ErrWrongSize = errors.New("protocol: wrong size")

// nativeEndian: framed messages never cross a machine boundary (they
// travel over local sockets between processes on the same host), so a
// fixed choice of byte order for the fixed-width fields is both correct
// and simplest.
var nativeEndian = binary.NativeEndian

func putString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func readString(r *bytes.Reader) (string, error) {
	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", ErrWrongSize
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}

// JumpPayload carries the Jump(target) command's exact-path-match target.
type JumpPayload struct {
	Target string
}

func (p JumpPayload) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, p.Target)
	return buf.Bytes()
}

func DecodeJump(b []byte) (JumpPayload, error) {
	target, err := readString(bytes.NewReader(b))
	if err != nil {
		return JumpPayload{}, err
	}
	return JumpPayload{Target: target}, nil
}

// SeekPayload carries Seek(position, relative?, percent?).
type SeekPayload struct {
	Position int64 // seconds, or percent points [0,100] when Percent is set
	Relative bool
	Percent  bool
}

const seekPayloadSize = 8 + 1 + 1

func (p SeekPayload) Encode() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, nativeEndian, p.Position)
	buf.WriteByte(boolByte(p.Relative))
	buf.WriteByte(boolByte(p.Percent))
	return buf.Bytes()
}

func DecodeSeek(b []byte) (SeekPayload, error) {
	if len(b) != seekPayloadSize {
		return SeekPayload{}, ErrWrongSize
	}
	r := bytes.NewReader(b)
	var pos int64
	_ = binary.Read(r, nativeEndian, &pos)
	rel, _ := r.ReadByte()
	pct, _ := r.ReadByte()
	return SeekPayload{Position: pos, Relative: rel != 0, Percent: pct != 0}, nil
}

// ModePayload carries the tri-state Mode(req) command.
type ModePayload struct {
	RepeatOne uint8 // playstate.ModeRequest, packed as a single byte
	RepeatAll uint8
	Consume   uint8
}

const modePayloadSize = 3

func (p ModePayload) Encode() []byte {
	return []byte{p.RepeatOne, p.RepeatAll, p.Consume}
}

func DecodeMode(b []byte) (ModePayload, error) {
	if len(b) != modePayloadSize {
		return ModePayload{}, ErrWrongSize
	}
	return ModePayload{RepeatOne: b[0], RepeatAll: b[1], Consume: b[2]}, nil
}

// CommitPayload carries Commit(offset); negative means append.
type CommitPayload struct {
	Offset int32
}

const commitPayloadSize = 4

func (p CommitPayload) Encode() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, nativeEndian, p.Offset)
	return buf.Bytes()
}

func DecodeCommit(b []byte) (CommitPayload, error) {
	if len(b) != commitPayloadSize {
		return CommitPayload{}, ErrWrongSize
	}
	var off int32
	_ = binary.Read(bytes.NewReader(b), nativeEndian, &off)
	return CommitPayload{Offset: off}, nil
}

// PathPayload carries a single NUL-terminated path, used by Add and
// PlaylistEntry.
type PathPayload struct {
	Path string
}

func (p PathPayload) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, p.Path)
	return buf.Bytes()
}

func DecodePath(b []byte) (PathPayload, error) {
	path, err := readString(bytes.NewReader(b))
	if err != nil {
		return PathPayload{}, err
	}
	return PathPayload{Path: path}, nil
}

// ErrorPayload carries a human-readable error message for the originating
// connection.
type ErrorPayload struct {
	Message string
}

func (p ErrorPayload) Encode() []byte {
	var buf bytes.Buffer
	putString(&buf, p.Message)
	return buf.Bytes()
}

func DecodeError(b []byte) (ErrorPayload, error) {
	msg, err := readString(bytes.NewReader(b))
	if err != nil {
		return ErrorPayload{}, err
	}
	return ErrorPayload{Message: msg}, nil
}

// StatusReplyPayload answers a Status command: current track, position,
// duration, state, and all three modes.
type StatusReplyPayload struct {
	Track     string
	Position  int64
	Duration  int64
	State     uint8
	RepeatOne bool
	RepeatAll bool
	Consume   bool
}

func (p StatusReplyPayload) Encode() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, nativeEndian, p.Position)
	_ = binary.Write(&buf, nativeEndian, p.Duration)
	buf.WriteByte(p.State)
	buf.WriteByte(boolByte(p.RepeatOne))
	buf.WriteByte(boolByte(p.RepeatAll))
	buf.WriteByte(boolByte(p.Consume))
	putString(&buf, p.Track)
	return buf.Bytes()
}

func DecodeStatusReply(b []byte) (StatusReplyPayload, error) {
	const fixed = 8 + 8 + 1 + 1 + 1 + 1
	if len(b) < fixed {
		return StatusReplyPayload{}, ErrWrongSize
	}
	r := bytes.NewReader(b)
	var p StatusReplyPayload
	_ = binary.Read(r, nativeEndian, &p.Position)
	_ = binary.Read(r, nativeEndian, &p.Duration)
	state, _ := r.ReadByte()
	rep1, _ := r.ReadByte()
	repA, _ := r.ReadByte()
	cons, _ := r.ReadByte()
	p.State, p.RepeatOne, p.RepeatAll, p.Consume = state, rep1 != 0, repA != 0, cons != 0
	track, err := readString(r)
	if err != nil {
		return StatusReplyPayload{}, err
	}
	p.Track = track
	return p, nil
}

// MonitorEventPayload is broadcast to every monitor-subscribed connection
// on any observable mutation.
type MonitorEventPayload struct {
	Event     uint8 // the Type that caused this broadcast, truncated to a byte
	Position  int64
	Duration  int64
	RepeatOne bool
	RepeatAll bool
	Consume   bool
}

const monitorEventPayloadSize = 1 + 8 + 8 + 1 + 1 + 1

func (p MonitorEventPayload) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(p.Event)
	_ = binary.Write(&buf, nativeEndian, p.Position)
	_ = binary.Write(&buf, nativeEndian, p.Duration)
	buf.WriteByte(boolByte(p.RepeatOne))
	buf.WriteByte(boolByte(p.RepeatAll))
	buf.WriteByte(boolByte(p.Consume))
	return buf.Bytes()
}

func DecodeMonitorEvent(b []byte) (MonitorEventPayload, error) {
	if len(b) != monitorEventPayloadSize {
		return MonitorEventPayload{}, ErrWrongSize
	}
	r := bytes.NewReader(b)
	var p MonitorEventPayload
	p.Event, _ = r.ReadByte()
	_ = binary.Read(r, nativeEndian, &p.Position)
	_ = binary.Read(r, nativeEndian, &p.Duration)
	rep1, _ := r.ReadByte()
	repA, _ := r.ReadByte()
	cons, _ := r.ReadByte()
	p.RepeatOne, p.RepeatAll, p.Consume = rep1 != 0, repA != 0, cons != 0
	return p, nil
}

// WorkerOutcome is the result a codec collaborator reports for one Play
// message.
type WorkerOutcome uint8

const (
	OutcomeFinished WorkerOutcome = iota
	OutcomeStopped
	OutcomeError
	// OutcomePosition is not a terminal outcome: it tags a periodic
	// position-update event emitted while a track plays (at least once a
	// second), distinct from the outcome at track end.
	OutcomePosition
)

// WorkerEventPayload is what the player reports back to main on TypeWorkerEvent:
// either a periodic position update or a terminal outcome, optionally
// carrying an error message.
type WorkerEventPayload struct {
	Outcome  WorkerOutcome
	Position int64
	Duration int64
	Message  string // set only when Outcome == OutcomeError
}

func (p WorkerEventPayload) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Outcome))
	_ = binary.Write(&buf, nativeEndian, p.Position)
	_ = binary.Write(&buf, nativeEndian, p.Duration)
	putString(&buf, p.Message)
	return buf.Bytes()
}

func DecodeWorkerEvent(b []byte) (WorkerEventPayload, error) {
	const fixed = 1 + 8 + 8
	if len(b) < fixed {
		return WorkerEventPayload{}, ErrWrongSize
	}
	r := bytes.NewReader(b)
	var p WorkerEventPayload
	outcome, _ := r.ReadByte()
	p.Outcome = WorkerOutcome(outcome)
	_ = binary.Read(r, nativeEndian, &p.Position)
	_ = binary.Read(r, nativeEndian, &p.Duration)
	msg, err := readString(r)
	if err != nil {
		return WorkerEventPayload{}, err
	}
	p.Message = msg
	return p, nil
}

// VolumePayload carries a software volume level in [0, 1] on
// TypeWorkerVolume. Worker-bound only.
type VolumePayload struct {
	Level float64
}

func (p VolumePayload) Encode() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, nativeEndian, p.Level)
	return buf.Bytes()
}

func DecodeVolume(b []byte) (VolumePayload, error) {
	if len(b) != 8 {
		return VolumePayload{}, ErrWrongSize
	}
	var p VolumePayload
	_ = binary.Read(bytes.NewReader(b), nativeEndian, &p.Level)
	return p, nil
}

// MutePayload carries a mute toggle on TypeWorkerMute.
type MutePayload struct {
	Muted bool
}

func (p MutePayload) Encode() []byte {
	return []byte{boolByte(p.Muted)}
}

func DecodeMute(b []byte) (MutePayload, error) {
	if len(b) != 1 {
		return MutePayload{}, ErrWrongSize
	}
	return MutePayload{Muted: b[0] != 0}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
