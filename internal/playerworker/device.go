package playerworker

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

var (
	deviceMu    sync.Mutex
	deviceReady bool
	deviceRate  beep.SampleRate
)

// negotiateDevice opens the audio device at rate the first time it's
// called and never reinitializes it afterward; every later track gets
// resampled to the device's fixed rate instead by the caller once
// negotiateDevice returns.
func negotiateDevice(rate beep.SampleRate) error {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if deviceReady {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return err
	}
	deviceReady = true
	deviceRate = rate
	return nil
}

func currentDeviceRate() beep.SampleRate {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	return deviceRate
}
