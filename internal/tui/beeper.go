package tui

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const (
	beepFrequency = 441.0
	beepVolume    = 0.25
)

// beeper plays a square wave through the default portaudio output. The
// callback runs on portaudio's thread, gated by an atomic flag so the
// driver goroutine never blocks on audio.
type beeper struct {
	stream   *portaudio.Stream
	channels int
	step     float64
	phase    float64

	on atomic.Bool
}

func newBeeper() (*beeper, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to init portaudio: %w", err)
	}

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, fmt.Errorf("failed to query portaudio host api: %w", err)
	}

	params := portaudio.HighLatencyParameters(nil, host.DefaultOutputDevice)

	b := &beeper{
		channels: params.Output.Channels,
		step:     beepFrequency / params.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, b.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err = stream.Start(); err != nil {
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	b.stream = stream

	return b, nil
}

func (b *beeper) callback(out []float32) {
	if !b.on.Load() {
		// Restarting the phase while silent gives every beep a clean attack.
		b.phase = 0
		for i := range out {
			out[i] = 0
		}
		return
	}

	for i := 0; i < len(out); i += b.channels {
		sample := float32(beepVolume)
		if b.phase >= 0.5 {
			sample = -sample
		}

		for c := 0; c < b.channels; c++ {
			out[i+c] = sample
		}

		b.phase += b.step
		if b.phase >= 1 {
			b.phase--
		}
	}
}

func (b *beeper) SetBeeping(on bool) error {
	b.on.Store(on)
	return nil
}

func (b *beeper) Close() {
	if err := b.stream.Close(); err != nil {
		slog.Error("failed to close portaudio stream", "err", err)
	}

	if err := portaudio.Terminate(); err != nil {
		slog.Error("failed to terminate portaudio", "err", err)
	}
}
