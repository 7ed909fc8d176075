package vm

// Quirks selects between the historically strict interpretation of a few
// opcodes and the variants later interpreters introduced. Many programs only
// run correctly under one interpretation, so all three toggles are fixed at
// machine construction. The zero value is the strict behavior.
type Quirks struct {
	// ShiftCopiesY makes 8XY6 and 8XYE copy VY into VX before shifting.
	ShiftCopiesY bool

	// JumpOffsetUsesVX makes BNNN jump to NNN plus VX, where X is the top
	// nibble of NNN, instead of NNN plus V0.
	JumpOffsetUsesVX bool

	// LoadStoreIncrementsI makes FX55 and FX65 leave I incremented by X+1,
	// the way the original interpreter did.
	LoadStoreIncrementsI bool
}
