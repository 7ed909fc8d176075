package vm

// instr is the decoded view of one fetched instruction word. It lives for a
// single dispatch: handlers read whichever fields their encoding uses.
type instr struct {
	Word uint16 // the full instruction word

	X   uint8  // bits 8-11, first register selector
	Y   uint8  // bits 4-7, second register selector
	N   uint8  // bits 0-3, 4-bit immediate
	NN  uint8  // bits 0-7, 8-bit immediate
	NNN uint16 // bits 0-11, 12-bit address
}

func decode(word uint16) instr {
	return instr{
		Word: word,
		X:    uint8(word>>8) & 0x0F,
		Y:    uint8(word>>4) & 0x0F,
		N:    uint8(word) & 0x0F,
		NN:   uint8(word),
		NNN:  word & 0x0FFF,
	}
}
