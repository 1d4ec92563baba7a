package playerworker

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildOggPage assembles one raw Ogg page from a list of packets. Each packet
// is laced as 255-byte segments plus a final shorter one (0 for an exact
// multiple of 255), matching the real encoding rule; when continuesNext is
// set, the last packet's final segment is omitted so it continues onto the
// next page.
func buildOggPage(t *testing.T, granule int64, packets [][]byte, continuesNext bool) []byte {
	t.Helper()
	var segTable []byte
	var body []byte
	for i, pkt := range packets {
		body = append(body, pkt...)
		for len(pkt) >= 255 {
			segTable = append(segTable, 255)
			pkt = pkt[255:]
		}
		if i == len(packets)-1 && continuesNext {
			// last packet's remaining bytes already flushed as a 255 lead-in;
			// caller is responsible for the trailing packet being a multiple
			// of 255 when continuesNext is set.
			continue
		}
		segTable = append(segTable, byte(len(pkt)))
	}

	var buf bytes.Buffer
	buf.WriteString("OggS")
	buf.WriteByte(0) // version
	buf.WriteByte(0) // header type
	granuleBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(granuleBuf, uint64(granule))
	buf.Write(granuleBuf)
	buf.Write(make([]byte, 12)) // serial, page seq, checksum
	buf.WriteByte(byte(len(segTable)))
	buf.Write(segTable)
	buf.Write(body)
	return buf.Bytes()
}

func TestOggDemuxerSinglePageMultiplePackets(t *testing.T) {
	pageA := []byte("first packet")
	pageB := []byte("second packet, a bit longer")
	page := buildOggPage(t, 0, [][]byte{pageA, pageB}, false)

	d := newOggDemuxer(bytes.NewReader(page))
	got1, err := d.nextPacket()
	require.NoError(t, err)
	assert.Equal(t, pageA, got1)

	got2, err := d.nextPacket()
	require.NoError(t, err)
	assert.Equal(t, pageB, got2)

	_, err = d.nextPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOggDemuxerRejectsBadCapturePattern(t *testing.T) {
	d := newOggDemuxer(bytes.NewReader([]byte("NOTOGGS...")))
	_, err := d.nextPacket()
	assert.Error(t, err)
}
