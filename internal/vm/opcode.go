package vm

import (
	"fmt"
)

type instruction struct {
	Name    func(in instr) string
	Execute func(m *Machine, in instr) error
}

// family describes how one top-nibble opcode family resolves to an
// operation: either directly (op) or through a sub-opcode field (key, ops).
type family struct {
	key func(in instr) uint16
	ops map[uint16]instruction
	op  instruction
}

func byN(in instr) uint16   { return uint16(in.N) }
func byNN(in instr) uint16  { return uint16(in.NN) }
func byNNN(in instr) uint16 { return in.NNN }

// families is the complete instruction set: one entry per top nibble, one
// sub-table entry per defined operation. Every word outside this mapping is
// an unknown opcode; nothing executes silently.
var families = [16]family{
	0x0: {key: byNNN, ops: map[uint16]instruction{
		0x0E0: clsInstruction,
		0x0EE: rtsInstruction,
	}},
	0x1: {op: jmpInstruction},
	0x2: {op: jsrInstruction},
	0x3: {op: skeq1Instruction},
	0x4: {op: skne1Instruction},
	0x5: {key: byN, ops: map[uint16]instruction{
		0x0: skeq2Instruction,
	}},
	0x6: {op: mov1Instruction},
	0x7: {op: add1Instruction},
	0x8: {key: byN, ops: map[uint16]instruction{
		0x0: mov2Instruction,
		0x1: orInstruction,
		0x2: andInstruction,
		0x3: xorInstruction,
		0x4: add2Instruction,
		0x5: subInstruction,
		0x6: shrInstruction,
		0x7: rsbInstruction,
		0xE: shlInstruction,
	}},
	0x9: {key: byN, ops: map[uint16]instruction{
		0x0: skne2Instruction,
	}},
	0xA: {op: mviInstruction},
	0xB: {op: jmiInstruction},
	0xC: {op: randInstruction},
	0xD: {op: spriteInstruction},
	0xE: {key: byNN, ops: map[uint16]instruction{
		0x9E: skprInstruction,
		0xA1: skupInstruction,
	}},
	0xF: {key: byNN, ops: map[uint16]instruction{
		0x07: gdelayInstruction,
		0x0A: keyInstruction,
		0x15: sdelayInstruction,
		0x18: ssoundInstruction,
		0x1E: adiInstruction,
		0x29: fontInstruction,
		0x33: bcdInstruction,
		0x55: strInstruction,
		0x65: ldrInstruction,
	}},
}

// lookup routes a decoded instruction to its handler. It reports false for
// any (top nibble, sub-opcode) combination the instruction set does not
// define.
func lookup(in instr) (instruction, bool) {
	f := families[in.Word>>12]
	if f.key == nil {
		return f.op, true
	}

	op, ok := f.ops[f.key(in)]
	return op, ok
}

var (
	// 00E0	cls	Clear the screen
	clsInstruction = instruction{
		Name: func(in instr) string {
			return "cls"
		},
		Execute: func(m *Machine, in instr) error {
			for i := range m.display {
				m.display[i] = 0
			}
			return nil
		},
	}

	// 00EE	rts	Return from subroutine call
	rtsInstruction = instruction{
		Name: func(in instr) string {
			return "rts"
		},
		Execute: func(m *Machine, in instr) error {
			if m.sp == 0 {
				return ErrStackUnderflow
			}

			m.sp--
			m.pc = m.stack[m.sp]
			return nil
		},
	}

	// 1xxx	jmp xxx	Jump to address xxx
	jmpInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("jmp 0x%04x", in.NNN)
		},
		Execute: func(m *Machine, in instr) error {
			m.pc = in.NNN
			return nil
		},
	}

	// 2xxx	jsr xxx	Jump to subroutine at address xxx
	jsrInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("jsr 0x%04x", in.NNN)
		},
		Execute: func(m *Machine, in instr) error {
			if int(m.sp) == len(m.stack) {
				return ErrStackOverflow
			}

			m.stack[m.sp] = m.pc
			m.sp++
			m.pc = in.NNN
			return nil
		},
	}

	// 3rxx	skeq vr,xx	Skip if register r = constant
	skeq1Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("skeq v%x, %d", in.X, in.NN)
		},
		Execute: func(m *Machine, in instr) error {
			if m.registers[in.X] == in.NN {
				m.pc += InstructionSize
			}
			return nil
		},
	}

	// 4rxx	skne vr,xx	Skip if register r <> constant
	skne1Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("skne v%x, %d", in.X, in.NN)
		},
		Execute: func(m *Machine, in instr) error {
			if m.registers[in.X] != in.NN {
				m.pc += InstructionSize
			}
			return nil
		},
	}

	// 5ry0	skeq vr,vy	Skip if register r = register y
	skeq2Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("skeq v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			if m.registers[in.X] == m.registers[in.Y] {
				m.pc += InstructionSize
			}
			return nil
		},
	}

	// 6rxx	mov vr,xx	Move constant to register r
	mov1Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("mov v%x, %d", in.X, in.NN)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] = in.NN
			return nil
		},
	}

	// 7rxx	add vr,xx	Add constant to register r	No carry generated
	add1Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("add v%x, %d", in.X, in.NN)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] += in.NN
			return nil
		},
	}

	// 8ry0	mov vr,vy	Move register vy into vr
	mov2Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("mov v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] = m.registers[in.Y]
			return nil
		},
	}

	// 8ry1	or vr,vy	Or register vy into register vx
	orInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("or v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] |= m.registers[in.Y]
			return nil
		},
	}

	// 8ry2	and vr,vy	And register vy into register vx
	andInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("and v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] &= m.registers[in.Y]
			return nil
		},
	}

	// 8ry3	xor vr,vy	Exclusive or register vy into register vx
	xorInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("xor v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] ^= m.registers[in.Y]
			return nil
		},
	}

	// 8ry4	add vr,vy	Add register vy to vr, carry in vf
	add2Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("add v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			x := m.registers[in.X]
			m.registers[in.X] = x + m.registers[in.Y]

			// Carry iff the 8-bit sum wrapped. The flag is written last so
			// that 8FY4 leaves the flag, not the sum, in VF.
			if m.registers[in.X] < x {
				m.registers[0x0F] = 1
			} else {
				m.registers[0x0F] = 0
			}
			return nil
		},
	}

	// 8ry5	sub vr,vy	Subtract register vy from vr, borrow in vf	vf set to 0 if borrows
	subInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("sub v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			x := m.registers[in.X]
			y := m.registers[in.Y]
			m.registers[in.X] = x - y

			if x >= y {
				m.registers[0x0F] = 1
			} else {
				m.registers[0x0F] = 0
			}
			return nil
		},
	}

	// 8ry6	shr vr,vy	Shift register vr right, bit 0 goes into register vf
	shrInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("shr v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			if m.quirks.ShiftCopiesY {
				m.registers[in.X] = m.registers[in.Y]
			}

			bit := m.registers[in.X] & 0x01
			m.registers[in.X] >>= 1
			m.registers[0x0F] = bit
			return nil
		},
	}

	// 8ry7	rsb vr,vy	Subtract register vr from register vy, result in vr	vf set to 0 if borrows
	rsbInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("rsb v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			x := m.registers[in.X]
			y := m.registers[in.Y]
			m.registers[in.X] = y - x

			if y >= x {
				m.registers[0x0F] = 1
			} else {
				m.registers[0x0F] = 0
			}
			return nil
		},
	}

	// 8rye	shl vr,vy	Shift register vr left, bit 7 goes into register vf
	shlInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("shl v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			if m.quirks.ShiftCopiesY {
				m.registers[in.X] = m.registers[in.Y]
			}

			bit := m.registers[in.X] >> 7
			m.registers[in.X] <<= 1
			m.registers[0x0F] = bit
			return nil
		},
	}

	// 9ry0	skne vr,vy	Skip if register r <> register y
	skne2Instruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("skne v%x, v%x", in.X, in.Y)
		},
		Execute: func(m *Machine, in instr) error {
			if m.registers[in.X] != m.registers[in.Y] {
				m.pc += InstructionSize
			}
			return nil
		},
	}

	// axxx	mvi xxx	Load index register with constant xxx
	mviInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("mvi 0x%04x", in.NNN)
		},
		Execute: func(m *Machine, in instr) error {
			m.index = in.NNN
			return nil
		},
	}

	// bxxx	jmi xxx	Jump to address xxx+register v0
	jmiInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("jmi 0x%04x", in.NNN)
		},
		Execute: func(m *Machine, in instr) error {
			reg := uint8(0)
			if m.quirks.JumpOffsetUsesVX {
				reg = in.X
			}

			m.pc = in.NNN + uint16(m.registers[reg])
			return nil
		},
	}

	// crxx	rand vr,xx	vr = random byte masked by xx
	randInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("rand v%x, %d", in.X, in.NN)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] = m.randByte() & in.NN
			return nil
		},
	}

	// drys	sprite vr,vy,s	Draw sprite at screen location vr,vy height s
	// Sprites are stored in memory at the index register, 8 bits wide. The
	// start coordinate wraps onto the screen; the sprite itself is clipped
	// at the right and bottom edges. Drawing is xor drawing: vf reports
	// whether any set pixel was cleared.
	spriteInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", in.X, in.Y, in.N)
		},
		Execute: func(m *Machine, in instr) error {
			const spriteWidth = 8

			x := uint16(m.registers[in.X]) % ScreenWidth
			y := uint16(m.registers[in.Y]) % ScreenHeight

			m.registers[0x0F] = 0
			for row := uint16(0); row < uint16(in.N) && y+row < ScreenHeight; row++ {
				bits := m.memory[(m.index+row)&addrMask]

				for col := uint16(0); col < spriteWidth && x+col < ScreenWidth; col++ {
					if bits&(0x80>>col) == 0 {
						continue
					}

					at := (y+row)*ScreenWidth + x + col
					if m.display[at] != 0 {
						m.registers[0x0F] = 1
					}
					m.display[at] ^= 1
				}
			}
			return nil
		},
	}

	// er9e	skpr vr	Skip if key (register vr) pressed
	skprInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("skpr v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			if m.keypad[m.registers[in.X]&0x0F] {
				m.pc += InstructionSize
			}
			return nil
		},
	}

	// era1	skup vr	Skip if key (register vr) not pressed
	skupInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("skup v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			if !m.keypad[m.registers[in.X]&0x0F] {
				m.pc += InstructionSize
			}
			return nil
		},
	}

	// fr07	gdelay vr	Get delay timer into vr
	gdelayInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("gdelay v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			m.registers[in.X] = m.delayTimer
			return nil
		},
	}

	// fr0a	key vr	Wait for keypress, put key in register vr
	// Keys are scanned in ascending order. While none is down the PC is
	// rewound over this instruction, so the step function never blocks and
	// the driver's call cadence determines the real wait time.
	keyInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("key v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			for i, down := range m.keypad {
				if down {
					m.registers[in.X] = uint8(i)
					return nil
				}
			}

			m.pc -= InstructionSize
			return nil
		},
	}

	// fr15	sdelay vr	Set the delay timer to vr
	sdelayInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("sdelay v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			m.delayTimer = m.registers[in.X]
			return nil
		},
	}

	// fr18	ssound vr	Set the sound timer to vr
	ssoundInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("ssound v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			m.soundTimer = m.registers[in.X]
			return nil
		},
	}

	// fr1e	adi vr	Add register vr to the index register
	// vf is set to 1 when the sum crosses 0xFFF; I stays 12 bits.
	adiInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("adi v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			sum := m.index + uint16(m.registers[in.X])

			if sum > addrMask {
				m.registers[0x0F] = 1
			} else {
				m.registers[0x0F] = 0
			}

			m.index = sum & addrMask
			return nil
		},
	}

	// fr29	font vr	Point I to the glyph for hexadecimal character in vr	Glyph is 5 bytes high
	fontInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("font v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			m.index = FontStart + GlyphSize*uint16(m.registers[in.X]&0x0F)
			return nil
		},
	}

	// fr33	bcd vr	Store the bcd representation of register vr at location I,I+1,I+2	Doesn't change I
	bcdInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("bcd v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			x := m.registers[in.X]

			m.memory[m.index&addrMask] = x / 100
			m.memory[(m.index+1)&addrMask] = (x / 10) % 10
			m.memory[(m.index+2)&addrMask] = x % 10
			return nil
		},
	}

	// fr55	str v0-vr	Store registers v0-vr at location I onwards
	// With the increment quirk set, I ends up pointing past the block:
	// I = I + r + 1, the original interpreter's behavior.
	strInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("str v0-v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			n := uint16(in.X)

			for i := uint16(0); i <= n; i++ {
				m.memory[(m.index+i)&addrMask] = m.registers[i]
			}

			if m.quirks.LoadStoreIncrementsI {
				m.index = (m.index + n + 1) & addrMask
			}
			return nil
		},
	}

	// fr65	ldr v0-vr	Load registers v0-vr from location I onwards
	ldrInstruction = instruction{
		Name: func(in instr) string {
			return fmt.Sprintf("ldr v0-v%x", in.X)
		},
		Execute: func(m *Machine, in instr) error {
			n := uint16(in.X)

			for i := uint16(0); i <= n; i++ {
				m.registers[i] = m.memory[(m.index+i)&addrMask]
			}

			if m.quirks.LoadStoreIncrementsI {
				m.index = (m.index + n + 1) & addrMask
			}
			return nil
		},
	}
)
