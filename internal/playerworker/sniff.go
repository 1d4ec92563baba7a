package playerworker

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// codecKind identifies which decoder a track needs, decided purely from its
// leading bytes: magic bytes in the first few KB, never the filename.
type codecKind int

const (
	codecUnknown codecKind = iota
	codecFLAC
	codecMP3
	codecVorbis
	codecOpus
)

func (k codecKind) String() string {
	switch k {
	case codecFLAC:
		return "flac"
	case codecMP3:
		return "mp3"
	case codecVorbis:
		return "vorbis"
	case codecOpus:
		return "opus"
	default:
		return "unknown"
	}
}

const sniffWindow = 4096

var errUnrecognizedFormat = errors.New("playerworker: unrecognized format")

// sniffFormat peeks at the start of f and restores the read position to the
// beginning, since every codec collaborator needs to read the file from
// byte zero itself.
func sniffFormat(f *os.File) (codecKind, error) {
	buf := make([]byte, sniffWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return codecUnknown, err
	}
	buf = buf[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return codecUnknown, err
	}

	switch {
	case bytes.HasPrefix(buf, []byte("fLaC")):
		return codecFLAC, nil
	case bytes.HasPrefix(buf, []byte("OggS")):
		return sniffOggCodec(buf)
	case bytes.HasPrefix(buf, []byte("ID3")), looksLikeMPEGFrame(buf):
		return codecMP3, nil
	default:
		return codecUnknown, errUnrecognizedFormat
	}
}

// sniffOggCodec distinguishes Vorbis from Opus by looking for the "OpusHead"
// or "vorbis" identification signature anywhere in the sniffed window,
// since the "OggS" capture pattern is shared by both.
func sniffOggCodec(buf []byte) (codecKind, error) {
	if bytes.Contains(buf, []byte("OpusHead")) {
		return codecOpus, nil
	}
	if bytes.Contains(buf, []byte("vorbis")) {
		return codecVorbis, nil
	}
	return codecUnknown, errUnrecognizedFormat
}

func looksLikeMPEGFrame(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == 0xFF && buf[1]&0xE0 == 0xE0
}
