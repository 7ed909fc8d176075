package hal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/veandco/go-sdl2/sdl"
)

const (
	beepSampleRate = 44100
	// 441 Hz divides the sample rate exactly, so the queued chunk holds
	// whole wave periods and loops without a seam.
	beepFrequency = 441
	beepVolume    = 0.25
)

// beeper plays a square wave through an SDL audio queue. The device stays
// paused while the machine's sound timer is zero.
type beeper struct {
	device sdl.AudioDeviceID
	wave   []byte
	on     bool
}

func newBeeper() (*beeper, error) {
	spec := &sdl.AudioSpec{
		Freq:     beepSampleRate,
		Format:   sdl.AUDIO_F32LSB,
		Channels: 1,
		Samples:  512,
	}

	device, err := sdl.OpenAudioDevice("", false, spec, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open sdl audio device: %w", err)
	}

	return &beeper{
		device: device,
		wave:   squareWave(),
	}, nil
}

func (b *beeper) Close() {
	sdl.CloseAudioDevice(b.device)
}

// SetBeeping keeps the queue topped up with wave data while on, and pauses
// the device and drops the leftover queue when the beep ends.
func (b *beeper) SetBeeping(on bool) error {
	if on && sdl.GetQueuedAudioSize(b.device) < uint32(len(b.wave)) {
		if err := sdl.QueueAudio(b.device, b.wave); err != nil {
			return fmt.Errorf("failed to queue audio: %w", err)
		}
	}

	if on != b.on {
		b.on = on
		sdl.PauseAudioDevice(b.device, !on)

		if !on {
			sdl.ClearQueuedAudio(b.device)
		}
	}

	return nil
}

// squareWave renders two frames worth of the beep tone as little-endian
// 32-bit float samples.
func squareWave() []byte {
	const (
		period  = beepSampleRate / beepFrequency
		samples = period * 15
	)

	buf := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		sample := float32(beepVolume)
		if (i/(period/2))%2 == 1 {
			sample = -sample
		}

		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(sample))
	}

	return buf
}
