package vm

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// isDefined restates the instruction set as a flat predicate, independent of
// the dispatch table, so the two can be checked against each other.
func isDefined(word uint16) bool {
	switch word >> 12 {
	case 0x0:
		return word == 0x00E0 || word == 0x00EE
	case 0x1, 0x2, 0x3, 0x4, 0x6, 0x7, 0xA, 0xB, 0xC, 0xD:
		return true
	case 0x5, 0x9:
		return word&0x000F == 0x0
	case 0x8:
		switch word & 0x000F {
		case 0x0, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0xE:
			return true
		default:
			return false
		}
	case 0xE:
		nn := word & 0x00FF
		return nn == 0x9E || nn == 0xA1
	default:
		switch word & 0x00FF {
		case 0x07, 0x0A, 0x15, 0x18, 0x1E, 0x29, 0x33, 0x55, 0x65:
			return true
		default:
			return false
		}
	}
}

func TestLookup_CoversEveryWord(t *testing.T) {
	for word := 0; word <= 0xFFFF; word++ {
		w := uint16(word)

		_, ok := lookup(decode(w))
		if ok != isDefined(w) {
			t.Fatalf("0x%04X: lookup = %v, want %v", w, ok, isDefined(w))
		}
	}
}

func TestFamilies_DefinedOpcodeCount(t *testing.T) {
	defined := 0
	for _, f := range families {
		if f.key == nil {
			defined++
			continue
		}
		defined += len(f.ops)
	}

	assert.Equal(t, 34, defined)
}

func TestInstruction_Names(t *testing.T) {
	tests := []struct {
		name string
		word uint16
		want string
	}{
		{"cls", 0x00E0, "cls"},
		{"rts", 0x00EE, "rts"},
		{"jmp", 0x1234, "jmp 0x0234"},
		{"jsr", 0x2206, "jsr 0x0206"},
		{"skeq const", 0x3A2A, "skeq va, 42"},
		{"mov const", 0x6A2A, "mov va, 42"},
		{"add reg", 0x8124, "add v1, v2"},
		{"sprite", 0xD125, "sprite v1, v2, 5"},
		{"skpr", 0xE19E, "skpr v1"},
		{"key", 0xF30A, "key v3"},
		{"str", 0xF455, "str v0-v4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decode(tt.word)

			op, ok := lookup(in)
			assert.True(t, ok)
			assert.Equal(t, tt.want, op.Name(in))
		})
	}
}

func TestOpcode_Cls(t *testing.T) {
	m := New()
	loadWords(t, m, 0x00E0)
	m.display[5] = 1
	m.display[100] = 1

	assert.NoError(t, m.Step())
	assert.Equal(t, 0, lit(m.Display()))
}

func TestOpcode_CallReturn(t *testing.T) {
	m := New()
	loadWords(t, m, 0x2206, 0x0000, 0x0000, 0x00EE)

	assert.NoError(t, m.Step())
	assert.Equal(t, uint16(0x206), m.pc)
	assert.Equal(t, uint8(1), m.sp)
	assert.Equal(t, uint16(0x202), m.stack[0])

	assert.NoError(t, m.Step())
	assert.Equal(t, uint16(0x202), m.pc)
	assert.Equal(t, uint8(0), m.sp)
}

func TestOpcode_CallStackOverflow(t *testing.T) {
	// A subroutine that calls itself fills all return slots, then faults.
	m := New()
	loadWords(t, m, 0x2200)

	for i := 0; i < StackSize; i++ {
		assert.NoError(t, m.Step())
	}

	err := m.Step()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrStackOverflow))
}

func TestOpcode_ReturnStackUnderflow(t *testing.T) {
	m := New()
	loadWords(t, m, 0x00EE)

	err := m.Step()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrStackUnderflow))
}

func TestOpcode_Jump(t *testing.T) {
	m := New()
	loadWords(t, m, 0x1ABC)

	assert.NoError(t, m.Step())
	assert.Equal(t, uint16(0xABC), m.pc)
}

func TestOpcode_JumpOffset(t *testing.T) {
	t.Run("adds v0", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xB300)
		m.registers[0] = 0x10
		m.registers[3] = 0x05

		assert.NoError(t, m.Step())
		assert.Equal(t, uint16(0x310), m.pc)
	})

	t.Run("adds vx with quirk", func(t *testing.T) {
		m := New(WithQuirks(Quirks{JumpOffsetUsesVX: true}))
		loadWords(t, m, 0xB300)
		m.registers[0] = 0x10
		m.registers[3] = 0x05

		assert.NoError(t, m.Step())
		assert.Equal(t, uint16(0x305), m.pc)
	})
}

func TestOpcode_Skips(t *testing.T) {
	tests := []struct {
		name  string
		word  uint16
		setup func(m *Machine)
		skip  bool
	}{
		{"skeq const hit", 0x3042, func(m *Machine) { m.registers[0] = 0x42 }, true},
		{"skeq const miss", 0x3042, func(m *Machine) { m.registers[0] = 0x41 }, false},
		{"skne const hit", 0x4042, func(m *Machine) { m.registers[0] = 0x41 }, true},
		{"skne const miss", 0x4042, func(m *Machine) { m.registers[0] = 0x42 }, false},
		{"skeq reg hit", 0x5120, func(m *Machine) { m.registers[1], m.registers[2] = 7, 7 }, true},
		{"skeq reg miss", 0x5120, func(m *Machine) { m.registers[1], m.registers[2] = 7, 8 }, false},
		{"skne reg hit", 0x9120, func(m *Machine) { m.registers[1], m.registers[2] = 7, 8 }, true},
		{"skne reg miss", 0x9120, func(m *Machine) { m.registers[1], m.registers[2] = 7, 7 }, false},
		{"skpr key down", 0xE09E, func(m *Machine) { m.registers[0] = 0xB; m.SetKey(KeyB, true) }, true},
		{"skpr key up", 0xE09E, func(m *Machine) { m.registers[0] = 0xB }, false},
		{"skup key up", 0xE0A1, func(m *Machine) { m.registers[0] = 0xB }, true},
		{"skup key down", 0xE0A1, func(m *Machine) { m.registers[0] = 0xB; m.SetKey(KeyB, true) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			loadWords(t, m, tt.word)
			tt.setup(m)

			assert.NoError(t, m.Step())

			want := ProgramStart + InstructionSize
			if tt.skip {
				want += InstructionSize
			}
			assert.Equal(t, want, m.pc)
		})
	}
}

func TestOpcode_MovAddConst(t *testing.T) {
	m := New()
	loadWords(t, m, 0x6A42, 0x7A01, 0x7AFF)

	assert.NoError(t, m.Step())
	assert.Equal(t, uint8(0x42), m.registers[0xA])

	assert.NoError(t, m.Step())
	assert.Equal(t, uint8(0x43), m.registers[0xA])

	// 7XNN wraps without touching the flag register.
	m.registers[0xF] = 9
	assert.NoError(t, m.Step())
	assert.Equal(t, uint8(0x42), m.registers[0xA])
	assert.Equal(t, uint8(9), m.registers[0xF])
}

func TestOpcode_Alu(t *testing.T) {
	tests := []struct {
		name string
		word uint16
		x    uint8
		y    uint8
		want uint8
	}{
		{"mov", 0x8120, 0x12, 0x34, 0x34},
		{"or", 0x8121, 0xF0, 0x0F, 0xFF},
		{"and", 0x8122, 0xF6, 0x0F, 0x06},
		{"xor", 0x8123, 0xFF, 0x0F, 0xF0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			loadWords(t, m, tt.word)
			m.registers[1] = tt.x
			m.registers[2] = tt.y

			assert.NoError(t, m.Step())
			assert.Equal(t, tt.want, m.registers[1])
			assert.Equal(t, tt.y, m.registers[2])
		})
	}
}

func TestOpcode_AddCarry(t *testing.T) {
	t.Run("no carry", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0x8124)
		m.registers[1] = 10
		m.registers[2] = 20
		m.registers[0xF] = 1

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(30), m.registers[1])
		assert.Equal(t, uint8(0), m.registers[0xF])
	})

	t.Run("carry wraps", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0x8124)
		m.registers[1] = 200
		m.registers[2] = 100

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(44), m.registers[1])
		assert.Equal(t, uint8(1), m.registers[0xF])
	})

	t.Run("flag wins when vf is the destination", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0x8FE4)
		m.registers[0xF] = 200
		m.registers[0xE] = 100

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(1), m.registers[0xF])
	})
}

func TestOpcode_SubBorrow(t *testing.T) {
	tests := []struct {
		name string
		x    uint8
		y    uint8
		want uint8
		flag uint8
	}{
		{"no borrow", 30, 10, 20, 1},
		{"borrow", 10, 30, 236, 0},
		{"equal operands", 9, 9, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			loadWords(t, m, 0x8125)
			m.registers[1] = tt.x
			m.registers[2] = tt.y

			assert.NoError(t, m.Step())
			assert.Equal(t, tt.want, m.registers[1])
			assert.Equal(t, tt.flag, m.registers[0xF])
		})
	}

	t.Run("flag wins when vf is the destination", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0x8FE5)
		m.registers[0xF] = 9
		m.registers[0xE] = 3

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(1), m.registers[0xF])
	})
}

func TestOpcode_RsbBorrow(t *testing.T) {
	tests := []struct {
		name string
		x    uint8
		y    uint8
		want uint8
		flag uint8
	}{
		{"no borrow", 10, 30, 20, 1},
		{"borrow", 30, 10, 236, 0},
		{"equal operands", 9, 9, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			loadWords(t, m, 0x8127)
			m.registers[1] = tt.x
			m.registers[2] = tt.y

			assert.NoError(t, m.Step())
			assert.Equal(t, tt.want, m.registers[1])
			assert.Equal(t, tt.flag, m.registers[0xF])
		})
	}
}

func TestOpcode_ShiftRight(t *testing.T) {
	t.Run("shifts vx in place", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0x8126)
		m.registers[1] = 0x05
		m.registers[2] = 0xFF

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(0x02), m.registers[1])
		assert.Equal(t, uint8(1), m.registers[0xF])
		assert.Equal(t, uint8(0xFF), m.registers[2])
	})

	t.Run("copies vy first with quirk", func(t *testing.T) {
		m := New(WithQuirks(Quirks{ShiftCopiesY: true}))
		loadWords(t, m, 0x8126)
		m.registers[1] = 0x05
		m.registers[2] = 0x08

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(0x04), m.registers[1])
		assert.Equal(t, uint8(0), m.registers[0xF])
	})
}

func TestOpcode_ShiftLeft(t *testing.T) {
	t.Run("shifts vx in place", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0x812E)
		m.registers[1] = 0x81
		m.registers[2] = 0xFF

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(0x02), m.registers[1])
		assert.Equal(t, uint8(1), m.registers[0xF])
		assert.Equal(t, uint8(0xFF), m.registers[2])
	})

	t.Run("copies vy first with quirk", func(t *testing.T) {
		m := New(WithQuirks(Quirks{ShiftCopiesY: true}))
		loadWords(t, m, 0x812E)
		m.registers[1] = 0x81
		m.registers[2] = 0x7F

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(0xFE), m.registers[1])
		assert.Equal(t, uint8(0), m.registers[0xF])
	})
}

func TestOpcode_LoadIndex(t *testing.T) {
	m := New()
	loadWords(t, m, 0xA123)

	assert.NoError(t, m.Step())
	assert.Equal(t, uint16(0x123), m.index)
}

func TestOpcode_Rand(t *testing.T) {
	t.Run("seeded machines agree", func(t *testing.T) {
		a := New(WithRand(rand.New(rand.NewPCG(1, 2))))
		b := New(WithRand(rand.New(rand.NewPCG(1, 2))))
		loadWords(t, a, 0xC0FF)
		loadWords(t, b, 0xC0FF)

		assert.NoError(t, a.Step())
		assert.NoError(t, b.Step())
		assert.Equal(t, a.registers[0], b.registers[0])
	})

	t.Run("mask applies", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xC000, 0xC10F)

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(0), m.registers[0])

		assert.NoError(t, m.Step())
		assert.Equal(t, uint8(0), m.registers[1]&0xF0)
	})
}

func TestOpcode_Sprite(t *testing.T) {
	t.Run("draws glyph rows", func(t *testing.T) {
		// I starts at zero, the first font glyph.
		m := New()
		loadWords(t, m, 0xD015)

		assert.NoError(t, m.Step())

		display := m.Display()
		assert.Equal(t, 14, lit(display))
		for col := 0; col < 4; col++ {
			assert.Equal(t, uint8(1), display[col])
		}
		for col := 4; col < 8; col++ {
			assert.Equal(t, uint8(0), display[col])
		}
		assert.Equal(t, uint8(0), m.registers[0xF])
	})

	t.Run("erases on redraw", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xD015, 0xD015)

		assert.NoError(t, m.Step())
		assert.NoError(t, m.Step())

		assert.Equal(t, 0, lit(m.Display()))
		assert.Equal(t, uint8(1), m.registers[0xF])
	})

	t.Run("clips at the right edge", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xD011)
		m.index = 0x300
		m.memory[0x300] = 0xFF
		m.registers[0] = 62

		assert.NoError(t, m.Step())

		display := m.Display()
		assert.Equal(t, 2, lit(display))
		assert.Equal(t, uint8(1), display[62])
		assert.Equal(t, uint8(1), display[63])
		assert.Equal(t, uint8(0), display[64])
	})

	t.Run("clips at the bottom edge", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xD012)
		m.index = 0x300
		m.memory[0x300] = 0xFF
		m.memory[0x301] = 0xFF
		m.registers[1] = 31

		assert.NoError(t, m.Step())

		display := m.Display()
		assert.Equal(t, 8, lit(display))
		for col := 0; col < 8; col++ {
			assert.Equal(t, uint8(1), display[31*ScreenWidth+col])
		}
	})

	t.Run("wraps the start coordinates", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xD011)
		m.index = 0x300
		m.memory[0x300] = 0x80
		m.registers[0] = 64 + 2
		m.registers[1] = 32 + 1

		assert.NoError(t, m.Step())

		display := m.Display()
		assert.Equal(t, 1, lit(display))
		assert.Equal(t, uint8(1), display[1*ScreenWidth+2])
	})
}

func TestOpcode_KeyWait(t *testing.T) {
	m := New()
	loadWords(t, m, 0xF10A)

	// With no key down the PC rewinds, so the instruction re-executes on
	// the next step instead of blocking.
	assert.NoError(t, m.Step())
	assert.Equal(t, ProgramStart, m.pc)
	assert.NoError(t, m.Step())
	assert.Equal(t, ProgramStart, m.pc)

	m.SetKey(Key7, true)
	assert.NoError(t, m.Step())
	assert.Equal(t, ProgramStart+InstructionSize, m.pc)
	assert.Equal(t, uint8(0x7), m.registers[1])
}

func TestOpcode_KeyWaitLowestKeyWins(t *testing.T) {
	m := New()
	loadWords(t, m, 0xF10A)
	m.SetKey(KeyB, true)
	m.SetKey(Key3, true)

	assert.NoError(t, m.Step())
	assert.Equal(t, uint8(0x3), m.registers[1])
}

func TestOpcode_DelayTimer(t *testing.T) {
	m := New()
	loadWords(t, m, 0x6105, 0xF115, 0xF207)

	for i := 0; i < 3; i++ {
		assert.NoError(t, m.Step())
	}

	assert.Equal(t, uint8(5), m.DelayTimer())
	assert.Equal(t, uint8(5), m.registers[2])
}

func TestOpcode_SoundTimer(t *testing.T) {
	m := New()
	loadWords(t, m, 0x6203, 0xF218)

	assert.NoError(t, m.Step())
	assert.NoError(t, m.Step())

	assert.Equal(t, uint8(3), m.SoundTimer())
}

func TestOpcode_AddIndex(t *testing.T) {
	t.Run("no carry", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xF01E)
		m.index = 0x100
		m.registers[0] = 5
		m.registers[0xF] = 1

		assert.NoError(t, m.Step())
		assert.Equal(t, uint16(0x105), m.index)
		assert.Equal(t, uint8(0), m.registers[0xF])
	})

	t.Run("carry wraps to 12 bits", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xF01E)
		m.index = 0xFFE
		m.registers[0] = 5

		assert.NoError(t, m.Step())
		assert.Equal(t, uint16(0x003), m.index)
		assert.Equal(t, uint8(1), m.registers[0xF])
	})
}

func TestOpcode_FontIndex(t *testing.T) {
	m := New()
	loadWords(t, m, 0xF029)
	m.registers[0] = 0x0A

	assert.NoError(t, m.Step())
	assert.Equal(t, FontStart+GlyphSize*0xA, m.index)
	assert.Equal(t, fontSet[GlyphSize*0xA:GlyphSize*0xB], m.memory[m.index:m.index+GlyphSize])
}

func TestOpcode_FontIndexIgnoresHighNibble(t *testing.T) {
	m := New()
	loadWords(t, m, 0xF029)
	m.registers[0] = 0xFA

	assert.NoError(t, m.Step())
	assert.Equal(t, FontStart+GlyphSize*0xA, m.index)
}

func TestOpcode_Bcd(t *testing.T) {
	tests := []struct {
		name     string
		value    uint8
		hundreds uint8
		tens     uint8
		ones     uint8
	}{
		{"255", 255, 2, 5, 5},
		{"30", 30, 0, 3, 0},
		{"7", 7, 0, 0, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			loadWords(t, m, 0xF033)
			m.index = 0x300
			m.registers[0] = tt.value

			assert.NoError(t, m.Step())
			assert.Equal(t, tt.hundreds, m.memory[0x300])
			assert.Equal(t, tt.tens, m.memory[0x301])
			assert.Equal(t, tt.ones, m.memory[0x302])
			assert.Equal(t, uint16(0x300), m.index)
		})
	}
}

func TestOpcode_StoreRegisters(t *testing.T) {
	t.Run("stores v0 through vx", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xF355)
		m.index = 0x300
		m.registers[0], m.registers[1], m.registers[2], m.registers[3] = 1, 2, 3, 4
		m.registers[4] = 9

		assert.NoError(t, m.Step())
		assert.Equal(t, []uint8{1, 2, 3, 4}, m.memory[0x300:0x304])
		assert.Equal(t, uint8(0), m.memory[0x304])
		assert.Equal(t, uint16(0x300), m.index)
	})

	t.Run("leaves index past the block with quirk", func(t *testing.T) {
		m := New(WithQuirks(Quirks{LoadStoreIncrementsI: true}))
		loadWords(t, m, 0xF355)
		m.index = 0x300

		assert.NoError(t, m.Step())
		assert.Equal(t, uint16(0x304), m.index)
	})
}

func TestOpcode_LoadRegisters(t *testing.T) {
	t.Run("loads v0 through vx", func(t *testing.T) {
		m := New()
		loadWords(t, m, 0xF265)
		m.index = 0x300
		m.memory[0x300], m.memory[0x301], m.memory[0x302] = 5, 6, 7
		m.registers[3] = 0xEE

		assert.NoError(t, m.Step())
		assert.Equal(t, []uint8{5, 6, 7}, m.registers[:3])
		assert.Equal(t, uint8(0xEE), m.registers[3])
		assert.Equal(t, uint16(0x300), m.index)
	})

	t.Run("leaves index past the block with quirk", func(t *testing.T) {
		m := New(WithQuirks(Quirks{LoadStoreIncrementsI: true}))
		loadWords(t, m, 0xF265)
		m.index = 0x300

		assert.NoError(t, m.Step())
		assert.Equal(t, uint16(0x303), m.index)
	})
}
