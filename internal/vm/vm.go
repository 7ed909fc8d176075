package vm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	InstructionSize = 2

	// addrMask folds every effective address into the 12-bit address space,
	// so memory access is total and a runaway program cannot fault the host.
	addrMask = uint16(0x0FFF)
)

// Machine is one CHIP-8 virtual machine: memory, registers, call stack,
// timers, display and keypad. It is not safe for concurrent use; callers
// that share a Machine across goroutines must serialize every method.
type Machine struct {
	memory    []uint8 // Memory (4k), font at FontStart, program at ProgramStart
	registers []uint8 // V registers (V0-VF)

	stack []uint16 // Call stack
	sp    uint8    // Stack pointer

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8
	soundTimer uint8

	display []uint8 // Display bitmap, row-major, one byte per pixel
	keypad  []bool  // Key states, indexed by Key

	quirks Quirks
	rng    *rand.Rand
}

// Option configures a Machine at construction.
type Option func(*Machine)

// WithQuirks selects the quirk configuration. The default is the zero
// Quirks value, the historical reference behavior.
func WithQuirks(q Quirks) Option {
	return func(m *Machine) {
		m.quirks = q
	}
}

// WithRand replaces the machine's random source, letting tests make CXNN
// deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(m *Machine) {
		m.rng = rng
	}
}

// New returns a machine with the font set in memory, PC at ProgramStart and
// everything else zeroed, ready for Load.
func New(opts ...Option) *Machine {
	m := &Machine{
		memory:    make([]uint8, MemorySize),
		registers: make([]uint8, RegisterCount),
		stack:     make([]uint16, StackSize),
		display:   make([]uint8, ScreenWidth*ScreenHeight),
		keypad:    make([]bool, KeyCount),
		pc:        ProgramStart,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}

	copy(m.memory[FontStart:], fontSet)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Load copies a program into memory at ProgramStart. A program that would
// extend past the end of memory is rejected without mutating anything.
func (m *Machine) Load(program []byte) error {
	if len(program) > MemorySize-int(ProgramStart) {
		return fmt.Errorf("%d bytes: %w", len(program), ErrProgramTooLarge)
	}

	slog.Debug("load program", "at", fmt.Sprintf("0x%04X", ProgramStart), "n", len(program))
	copy(m.memory[ProgramStart:], program)
	return nil
}

// Key identifies one of the 16 keypad keys.
type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// SetKey records one key as pressed or released. Only the low nibble of the
// key is significant.
func (m *Machine) SetKey(key Key, down bool) {
	m.keypad[key&0x0F] = down
}

// Display returns a snapshot of the 64x32 display, row-major, one byte per
// pixel (0 or 1). The snapshot is a copy and stays valid across steps.
func (m *Machine) Display() []uint8 {
	display := make([]uint8, len(m.display))
	copy(display, m.display)
	return display
}

// DelayTimer returns the current delay timer value.
func (m *Machine) DelayTimer() uint8 {
	return m.delayTimer
}

// SoundTimer returns the current sound timer value. The beeper should be
// audible while it is non-zero.
func (m *Machine) SoundTimer() uint8 {
	return m.soundTimer
}

// TickDelay decrements the delay timer, saturating at zero. It is meant to
// be called once per frame tick, independent of how many instructions the
// driver executes per tick.
func (m *Machine) TickDelay() {
	if m.delayTimer > 0 {
		m.delayTimer--
	}
}

// TickSound decrements the sound timer, saturating at zero.
func (m *Machine) TickSound() {
	if m.soundTimer > 0 {
		m.soundTimer--
	}
}

// Step executes exactly one instruction: fetch the big-endian word at PC,
// advance PC by 2, decode and dispatch. The only waiting behavior, FX0A,
// is a PC rewind, so Step always returns promptly. An unknown opcode or a
// call-stack fault fails the step with a wrapped error value.
func (m *Machine) Step() error {
	at := m.pc
	in := decode(m.fetch())

	op, ok := lookup(in)
	if !ok {
		return fmt.Errorf("0x%04X at 0x%04X: %w", in.Word, at, ErrUnknownOpcode)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04X", at),
			"opcode", fmt.Sprintf("0x%04X", in.Word),
			"instr", op.Name(in),
		)
	}

	if err := op.Execute(m, in); err != nil {
		return fmt.Errorf("0x%04X at 0x%04X: %w", in.Word, at, err)
	}

	return nil
}

func (m *Machine) fetch() uint16 {
	hi := m.memory[m.pc&addrMask]
	lo := m.memory[(m.pc+1)&addrMask]

	m.pc += InstructionSize
	return uint16(hi)<<8 | uint16(lo)
}

func (m *Machine) randByte() uint8 {
	return uint8(m.rng.IntN(256))
}
