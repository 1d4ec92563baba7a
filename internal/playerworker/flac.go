package playerworker

import (
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
)

func decodeFLAC(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	return flac.Decode(f)
}
