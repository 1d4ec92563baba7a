package playerworker

import (
	"encoding/binary"
	"errors"
	"io"
)

var errBadOggPage = errors.New("playerworker: invalid ogg page")

// oggDemuxer pulls raw packets out of an Ogg bitstream, joining packets that
// span a page boundary (a page whose last segment table entry is 255 means
// that packet continues on the next page). Neither jj11hh/opus nor
// jfreymuth/vorbis's low-level Decoder demux their own Ogg container, so
// this exists to hand both whole packets; it does not attempt to be a
// general-purpose Ogg reader.
type oggDemuxer struct {
	r       io.Reader
	pending []byte
	queue   [][]byte
}

func newOggDemuxer(r io.Reader) *oggDemuxer {
	return &oggDemuxer{r: r}
}

func (d *oggDemuxer) nextPacket() ([]byte, error) {
	for len(d.queue) == 0 {
		if err := d.readPage(); err != nil {
			return nil, err
		}
	}
	pkt := d.queue[0]
	d.queue = d.queue[1:]
	return pkt, nil
}

func (d *oggDemuxer) readPage() error {
	var hdr [27]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return err
	}
	if string(hdr[0:4]) != "OggS" {
		return errBadOggPage
	}
	_ = binary.LittleEndian.Uint64(hdr[6:14]) // granule position, unused by this minimal demuxer

	numSeg := int(hdr[26])
	segTable := make([]byte, numSeg)
	if numSeg > 0 {
		if _, err := io.ReadFull(d.r, segTable); err != nil {
			return err
		}
	}

	cur := d.pending
	d.pending = nil
	for i, seg := range segTable {
		if seg > 0 {
			buf := make([]byte, seg)
			if _, err := io.ReadFull(d.r, buf); err != nil {
				return err
			}
			cur = append(cur, buf...)
		}
		last := i == len(segTable)-1
		if seg == 255 && last {
			d.pending = cur
			cur = nil
			continue
		}
		if seg < 255 {
			d.queue = append(d.queue, cur)
			cur = nil
		}
	}
	return nil
}
