package playerworker

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/jj11hh/opus"
)

const opusSampleRate = 48000

// opusDecoder wraps jj11hh/opus, which decodes raw Opus packets but knows
// nothing of the Ogg container, over the package's own minimal oggDemuxer.
type opusDecoder struct {
	demux    *oggDemuxer
	decoder  *opus.Decoder
	closer   io.Closer
	channels int
	pcm      []float32
	pos      int
	total    int
	err      error
}

func decodeOpus(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	demux := newOggDemuxer(f)

	head, err := demux.nextPacket()
	if err != nil {
		return nil, beep.Format{}, err
	}
	if len(head) < 19 || string(head[0:8]) != "OpusHead" {
		return nil, beep.Format{}, errors.New("playerworker: not an OpusHead packet")
	}
	if head[8] != 1 {
		return nil, beep.Format{}, errors.New("playerworker: unsupported opus header version")
	}
	channels := int(head[9])
	_ = binary.LittleEndian.Uint16(head[10:12]) // pre-skip, not applied by this minimal adapter

	if _, err := demux.nextPacket(); err != nil { // OpusTags, discarded
		return nil, beep.Format{}, err
	}

	decoder, err := opus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, beep.Format{}, err
	}

	format := beep.Format{SampleRate: opusSampleRate, NumChannels: channels, Precision: 2}
	d := &opusDecoder{demux: demux, decoder: decoder, closer: f, channels: channels}
	d.pcm = make([]float32, 5760*channels)
	d.pos = len(d.pcm)
	return d, format, nil
}

func (d *opusDecoder) Stream(samples [][2]float64) (n int, ok bool) {
	if d.err != nil {
		return 0, false
	}
	for n < len(samples) {
		if d.pos >= len(d.pcm) {
			packet, err := d.demux.nextPacket()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return n, n > 0
				}
				d.err = err
				return n, n > 0
			}
			buf := make([]float32, 5760*d.channels)
			samplesPerChannel, decErr := d.decoder.DecodeFloat32(packet, buf)
			if decErr != nil {
				continue // skip invalid packets rather than aborting the stream
			}
			d.pcm = buf[:samplesPerChannel*d.channels]
			d.pos = 0
		}
		if d.channels >= 2 {
			samples[n][0] = float64(d.pcm[d.pos])
			samples[n][1] = float64(d.pcm[d.pos+1])
			d.pos += 2
		} else {
			v := float64(d.pcm[d.pos])
			samples[n][0], samples[n][1] = v, v
			d.pos++
		}
		d.total++
		n++
	}
	return n, true
}

func (d *opusDecoder) Err() error { return d.err }
func (d *opusDecoder) Len() int { return 0 }
func (d *opusDecoder) Position() int { return d.total }
func (d *opusDecoder) Seek(int) error { return errors.New("playerworker: opus seek not supported") }
func (d *opusDecoder) Close() error { return d.closer.Close() }
