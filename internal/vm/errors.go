package vm

import "errors"

// Step wraps these with the offending opcode and its address, so callers can
// match with errors.Is and still log where the machine faulted.
var (
	// ErrProgramTooLarge is returned by Load when the program does not fit
	// between ProgramStart and the end of memory. Memory is left untouched.
	ErrProgramTooLarge = errors.New("program too large")

	// ErrUnknownOpcode is returned by Step when the fetched word does not
	// match any defined instruction.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrStackOverflow is returned by Step when a call is executed with all
	// StackSize return slots in use.
	ErrStackOverflow = errors.New("call stack overflow")

	// ErrStackUnderflow is returned by Step when a return is executed with
	// an empty call stack.
	ErrStackUnderflow = errors.New("call stack underflow")
)
