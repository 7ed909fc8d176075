// Package driver runs a machine against a front end at a fixed frame
// cadence: drain input, execute a burst of instructions, present the frame,
// tick the timers.
package driver

import (
	"errors"
	"log/slog"

	"github.com/cosmac/vip8/internal/vm"
)

// FrameRate is the display and timer frequency in frames per second.
const FrameRate = 60

var (
	// ErrQuit is returned by a front end when the user asked to leave.
	ErrQuit = errors.New("quit")

	// ErrReboot is returned by a front end when the user asked to restart
	// the program on a fresh machine.
	ErrReboot = errors.New("reboot")
)

// HAL is the host side a driver runs the machine against: keypad input, a
// display, a beeper and a frame clock.
type HAL interface {
	// ReadInput drains pending host input, reporting keypad transitions
	// through the callbacks. It returns ErrQuit or ErrReboot when the user
	// asked for either.
	ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error

	// Draw presents a display snapshot, row-major, one byte per pixel.
	Draw(display []uint8) error

	// SetBeeping turns the beeper on or off. It is called every frame with
	// the current state, not just on transitions.
	SetBeeping(on bool) error

	// WaitForNextFrame blocks until the next frame is due.
	WaitForNextFrame() error
}

// Driver owns the frame loop for one machine and one front end.
type Driver struct {
	machine       *vm.Machine
	hal           HAL
	stepsPerFrame int
}

// New returns a driver that runs machine at ips instructions per second.
// The rate is rounded down to whole instructions per frame, at least one.
func New(machine *vm.Machine, hal HAL, ips int) *Driver {
	stepsPerFrame := ips / FrameRate
	if stepsPerFrame < 1 {
		stepsPerFrame = 1
	}

	return &Driver{
		machine:       machine,
		hal:           hal,
		stepsPerFrame: stepsPerFrame,
	}
}

// Run executes frames until the front end asks to stop or the machine
// faults. The front end's ErrQuit and ErrReboot pass through unchanged.
func (d *Driver) Run() error {
	slog.Debug("driver: run", "steps_per_frame", d.stepsPerFrame)

	for {
		if err := d.frame(); err != nil {
			return err
		}
	}
}

func (d *Driver) frame() error {
	if err := d.hal.ReadInput(d.keyDown, d.keyUp); err != nil {
		return err
	}

	for i := 0; i < d.stepsPerFrame; i++ {
		if err := d.machine.Step(); err != nil {
			return err
		}
	}

	if err := d.hal.Draw(d.machine.Display()); err != nil {
		return err
	}

	if err := d.hal.SetBeeping(d.machine.SoundTimer() > 0); err != nil {
		return err
	}

	// Timers run on the frame clock, one tick each per frame, no matter how
	// many instructions the frame executed.
	d.machine.TickDelay()
	d.machine.TickSound()

	return d.hal.WaitForNextFrame()
}

func (d *Driver) keyDown(key vm.Key) {
	d.machine.SetKey(key, true)
}

func (d *Driver) keyUp(key vm.Key) {
	d.machine.SetKey(key, false)
}
