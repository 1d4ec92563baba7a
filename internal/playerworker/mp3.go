package playerworker

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/llehouerou/go-mp3"
)

// mp3Decoder wraps llehouerou/go-mp3 to satisfy beep.StreamSeekCloser.
type mp3Decoder struct {
	decoder *mp3.Decoder
	closer  io.Closer
	readBuf []byte
	err     error
}

func decodeMP3(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, beep.Format{}, err
	}
	rate := decoder.SampleRate()
	if rate == 0 {
		return nil, beep.Format{}, errors.New("playerworker: mp3 has no sample rate")
	}
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}
	return &mp3Decoder{decoder: decoder, closer: f, readBuf: make([]byte, 8192)}, format, nil
}

func (d *mp3Decoder) Stream(samples [][2]float64) (n int, ok bool) {
	if d.err != nil {
		return 0, false
	}

	need := len(samples) * 4
	if len(d.readBuf) < need {
		d.readBuf = make([]byte, need)
	}
	read, err := io.ReadFull(d.decoder, d.readBuf[:need])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		d.err = err
		return 0, false
	}

	count := read / 4
	for i := 0; i < count; i++ {
		off := i * 4
		left := int16(binary.LittleEndian.Uint16(d.readBuf[off:]))
		right := int16(binary.LittleEndian.Uint16(d.readBuf[off+2:]))
		samples[i][0] = float64(left) / 32768.0
		samples[i][1] = float64(right) / 32768.0
	}
	return count, count > 0
}

func (d *mp3Decoder) Err() error { return d.err }

func (d *mp3Decoder) Len() int {
	count := d.decoder.SampleCount()
	if count < 0 {
		return 0
	}
	return int(count)
}

func (d *mp3Decoder) Position() int { return int(d.decoder.SamplePosition()) }

func (d *mp3Decoder) Seek(p int) error {
	if p < 0 {
		p = 0
	}
	if l := d.Len(); p > l {
		p = l
	}
	if err := d.decoder.SeekToSample(int64(p)); err != nil {
		return err
	}
	d.err = nil
	return nil
}

func (d *mp3Decoder) Close() error { return d.closer.Close() }
