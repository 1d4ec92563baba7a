package playerworker

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/jfreymuth/vorbis"
)

// vorbisDecoder wraps jfreymuth/vorbis's low-level Decoder, which decodes
// individual packets but (like jj11hh/opus) knows nothing of the Ogg
// container, over the package's own oggDemuxer. jfreymuth/vorbis returns
// interleaved samples per packet; Len/Seek are unsupported since the
// decoder is forward-only, but position still advances for status
// reporting.
type vorbisDecoder struct {
	demux    *oggDemuxer
	dec      *vorbis.Decoder
	closer   io.Closer
	channels int
	buf      []float32
	pos      int
	total    int
	err      error
}

func decodeVorbis(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	demux := newOggDemuxer(f)

	ident, err := demux.nextPacket()
	if err != nil {
		return nil, beep.Format{}, err
	}
	if len(ident) < 16 || ident[0] != 1 || string(ident[1:7]) != "vorbis" {
		return nil, beep.Format{}, errors.New("playerworker: not a vorbis identification header")
	}
	channels := int(ident[11])
	sampleRate := binary.LittleEndian.Uint32(ident[12:16])

	dec := &vorbis.Decoder{}
	if err := dec.ReadHeader(ident); err != nil {
		return nil, beep.Format{}, err
	}
	for i := 0; i < 2; i++ { // comment and setup headers
		hdr, err := demux.nextPacket()
		if err != nil {
			return nil, beep.Format{}, err
		}
		if err := dec.ReadHeader(hdr); err != nil {
			return nil, beep.Format{}, err
		}
	}

	format := beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: channels, Precision: 2}
	return &vorbisDecoder{demux: demux, dec: dec, closer: f, channels: channels}, format, nil
}

func (d *vorbisDecoder) Stream(samples [][2]float64) (n int, ok bool) {
	if d.err != nil {
		return 0, false
	}
	for n < len(samples) {
		if d.buf == nil || d.pos >= len(d.buf) {
			packet, err := d.demux.nextPacket()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return n, n > 0
				}
				d.err = err
				return n, n > 0
			}
			decoded, decErr := d.dec.Decode(packet)
			if decErr != nil {
				continue // skip invalid packets, matching the opus adapter
			}
			d.buf = decoded
			d.pos = 0
		}
		if d.channels >= 2 {
			samples[n][0] = float64(d.buf[d.pos])
			samples[n][1] = float64(d.buf[d.pos+1])
			d.pos += 2
		} else {
			v := float64(d.buf[d.pos])
			samples[n][0], samples[n][1] = v, v
			d.pos++
		}
		d.total++
		n++
	}
	return n, true
}

func (d *vorbisDecoder) Err() error { return d.err }
func (d *vorbisDecoder) Len() int { return 0 }
func (d *vorbisDecoder) Position() int { return d.total }
func (d *vorbisDecoder) Seek(int) error {
	return errors.New("playerworker: vorbis seek not supported")
}
func (d *vorbisDecoder) Close() error { return d.closer.Close() }
