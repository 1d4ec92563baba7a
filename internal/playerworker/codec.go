// Package playerworker implements the player worker's decode side: content
// sniffing, the four codec collaborators, device negotiation, and the
// event-loop-driven frame handling that receives
// WorkerPlay/Resume/Pause/Stop/Seek from main and reports WorkerEvent back.
//
// Codec-specific decoding is intentionally thin: each collaborator does
// nothing but turn raw bytes into beep's canonical stereo float64 stream.
package playerworker

import (
	"fmt"
	"os"

	"github.com/gopxl/beep/v2"
)

func decodeTrack(f *os.File) (beep.StreamSeekCloser, beep.Format, codecKind, error) {
	kind, err := sniffFormat(f)
	if err != nil {
		return nil, beep.Format{}, kind, err
	}
	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch kind {
	case codecFLAC:
		streamer, format, err = decodeFLAC(f)
	case codecMP3:
		streamer, format, err = decodeMP3(f)
	case codecVorbis:
		streamer, format, err = decodeVorbis(f)
	case codecOpus:
		streamer, format, err = decodeOpus(f)
	default:
		return nil, beep.Format{}, kind, fmt.Errorf("playerworker: unsupported codec kind %d", kind)
	}
	return streamer, format, kind, err
}
