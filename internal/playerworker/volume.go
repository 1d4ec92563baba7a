package playerworker

import (
	"math"

	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// softwareVolume wraps the currently playing stream in a beep/effects.Volume
// so main can adjust level or mute without codec cooperation. The effect is
// constructed once and lives across tracks rather than being recreated per
// Play, since it sits outside the per-track decode pipeline.
type softwareVolume struct {
	effect *effects.Volume
	level  float64
	muted  bool
}

func newSoftwareVolume() *softwareVolume {
	return &softwareVolume{level: 1, effect: &effects.Volume{Base: 2}}
}

func (v *softwareVolume) SetLevel(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	v.level = level
	speaker.Lock()
	v.effect.Volume = levelToDecibels(level)
	speaker.Unlock()
}

func (v *softwareVolume) SetMuted(muted bool) {
	v.muted = muted
	speaker.Lock()
	v.effect.Silent = muted
	speaker.Unlock()
}

// levelToDecibels maps a 0..1 level onto beep's base-2 logarithmic Volume
// scale: 1.0 -> 0 (no change), 0.5 -> -1 (half), 0 -> -10 (effectively
// silent).
func levelToDecibels(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
