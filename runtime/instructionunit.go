package runtime

import "fmt"

// returnRecord is one entry of the Instruction Unit's internal return stack:
// distinct from the guest-visible call Stack, this one holds the linkage
// information call_subroutine/return_from_subroutine need and is never
// directly reachable by guest code (spec.md §9, "Return-stack vs call
// stack").
type returnRecord struct {
	returnAddress uint16
	callerFP      int32
}

// InstructionUnit owns the program counter, the code context, and
// subroutine linkage (spec.md §4.5).
type InstructionUnit struct {
	ir uint16

	vmu       *VMU
	codeCtx   ContextID
	codeAcc   *PagedAccessor
	stack     *Stack
	stackAcc  *StackAccessor
	flags     *Flags
	io        BasicIO

	returnStack []returnRecord
}

// NewInstructionUnit creates the code context (capacity bytes) and wires the
// shared stack accessor, flags reference and BasicIO implementation the IU
// needs to execute CALL/RET and SYS.
func NewInstructionUnit(vmu *VMU, codeCapacity uint32, stack *Stack, flags *Flags, io BasicIO) (*InstructionUnit, error) {
	ctx, err := vmu.CreateContext(codeCapacity)
	if err != nil {
		return nil, fmt.Errorf("new instruction unit: %w", err)
	}
	return &InstructionUnit{vmu: vmu, codeCtx: ctx, stack: stack, flags: flags, io: io}, nil
}

// Activate mints the IU's reusable accessors. Must be called once the VMU
// has transitioned to PROTECTED mode, before Fetch/Jump/Call are used.
// codeWritable controls whether the code accessor accepts LoadProgram after
// activation (true during load, false for a pure-execution instance).
func (iu *InstructionUnit) Activate(codeWritable bool) error {
	mode := ReadOnly
	if codeWritable {
		mode = ReadWrite
	}
	codeAcc, err := NewPagedAccessor(iu.vmu, iu.codeCtx, mode)
	if err != nil {
		return fmt.Errorf("activate instruction unit: %w", err)
	}
	stackAcc, err := iu.stack.NewAccessor(ReadWrite)
	if err != nil {
		return fmt.Errorf("activate instruction unit: %w", err)
	}
	iu.codeAcc = codeAcc
	iu.stackAcc = stackAcc
	return nil
}

func (iu *InstructionUnit) GetIR() uint16 { return iu.ir }

func (iu *InstructionUnit) SetIR(v uint16) { iu.ir = v }

func (iu *InstructionUnit) AdvanceIR(n uint16) { iu.ir += n }

func (iu *InstructionUnit) pageOffset() (uint16, byte) {
	return iu.ir / 256, byte(iu.ir % 256)
}

// ReadByteAtIR reads the byte at IR without advancing it.
func (iu *InstructionUnit) ReadByteAtIR() (byte, error) {
	page, offset := iu.pageOffset()
	iu.codeAcc.SetPage(page)
	return iu.codeAcc.ReadByte(offset)
}

// ReadWordAtIR reads the word at IR without advancing it. If the word would
// straddle a page boundary it is read as two single-byte accesses across
// the page seam instead of failing - code layout is addressed linearly
// whereas the paged accessor's straddle rejection exists for random-access
// data references (SPEC_FULL.md Open Question #2).
func (iu *InstructionUnit) ReadWordAtIR() (uint16, error) {
	page, offset := iu.pageOffset()
	iu.codeAcc.SetPage(page)
	if offset == 255 {
		lo, err := iu.codeAcc.ReadByte(255)
		if err != nil {
			return 0, err
		}
		iu.codeAcc.SetPage(page + 1)
		hi, err := iu.codeAcc.ReadByte(0)
		if err != nil {
			return 0, err
		}
		return uint16(lo) | uint16(hi)<<8, nil
	}
	return iu.codeAcc.ReadWord(offset)
}

// ReadOperandBytes reads n bytes starting at IR without advancing it -
// callers (the CPU dispatch loop) advance IR themselves once the full
// instruction width is known, per spec.md §4.7 step 3.
func (iu *InstructionUnit) ReadOperandBytes(n byte) ([]byte, error) {
	out := make([]byte, n)
	ir := iu.ir
	for i := byte(0); i < n; i++ {
		page := ir / 256
		offset := byte(ir % 256)
		iu.codeAcc.SetPage(page)
		b, err := iu.codeAcc.ReadByte(offset)
		if err != nil {
			return nil, err
		}
		out[i] = b
		ir++
	}
	return out, nil
}

// LoadProgram writes bytes sequentially into the code context starting at
// offset 0, selecting pages as offset/256. Requires the IU to have been
// Activate(true)'d.
func (iu *InstructionUnit) LoadProgram(bytes []byte) error {
	cap, err := iu.vmu.ContextCapacity(iu.codeCtx)
	if err != nil {
		return err
	}
	if uint32(len(bytes)) > cap {
		return fmt.Errorf("load program of %d bytes: %w", len(bytes), ErrProgramTooLarge)
	}
	for i, b := range bytes {
		page := uint16(i / 256)
		offset := byte(i % 256)
		iu.codeAcc.SetPage(page)
		if err := iu.codeAcc.WriteByte(offset, b); err != nil {
			return fmt.Errorf("load program at offset %d: %w", i, err)
		}
	}
	return nil
}

func (iu *InstructionUnit) JumpTo(address uint16) {
	iu.ir = address
}

// JumpToIf performs a conditional jump based on the current Flags.
func (iu *InstructionUnit) JumpToIf(address uint16, flag Flag, expected bool) {
	if iu.flags.IsSet(flag) == expected {
		iu.ir = address
	}
}

// CallSubroutine implements spec.md §4.5's four-step linkage:
//  1. push {IR, stack.fp} onto the return stack
//  2. IR := address
//  3. push one byte (1 if expectsReturnValue else 0) to the stack
//  4. set_frame_to_top()
func (iu *InstructionUnit) CallSubroutine(address uint16, expectsReturnValue bool) error {
	iu.returnStack = append(iu.returnStack, returnRecord{
		returnAddress: iu.ir,
		callerFP:      iu.stack.GetFP(),
	})
	iu.ir = address

	flagByte := byte(0)
	if expectsReturnValue {
		flagByte = 1
	}
	if err := iu.stackAcc.PushByte(flagByte); err != nil {
		return fmt.Errorf("call subroutine: %w", err)
	}
	return iu.stackAcc.SetFrameToTop()
}

// ReturnFromSubroutine implements spec.md §4.5's five-step unwind:
//  1. fail if the return stack is empty
//  2. pop {ret_addr, caller_fp}
//  3. read the return-value flag byte at frame offset 0
//  4. flush() then set_frame_pointer(caller_fp) then pop_byte() to
//     discard the flag
//  5. IR := ret_addr
func (iu *InstructionUnit) ReturnFromSubroutine() error {
	if len(iu.returnStack) == 0 {
		return fmt.Errorf("return from subroutine: %w", ErrReturnStackEmpty)
	}
	top := iu.returnStack[len(iu.returnStack)-1]
	iu.returnStack = iu.returnStack[:len(iu.returnStack)-1]

	// frame offset 0 is the flag byte pushed by CallSubroutine, read before
	// it is discarded below. Its value isn't otherwise consumed here: the
	// calling convention has the callee push its return value below the
	// flag, then the caller re-reads it after the frame is torn down.
	if _, err := iu.stackAcc.PeekByteFromFrame(0); err != nil {
		return fmt.Errorf("return from subroutine: %w", err)
	}

	iu.stackAcc.Flush()
	if err := iu.stackAcc.SetFramePointer(top.callerFP); err != nil {
		return fmt.Errorf("return from subroutine: %w", err)
	}
	if _, err := iu.stackAcc.PopByte(); err != nil {
		return fmt.Errorf("return from subroutine: %w", err)
	}

	iu.ir = top.returnAddress
	return nil
}

// SystemCall dispatches one of the implemented BasicIO syscalls (spec.md
// §6). The print calls pop a count word, then that many characters, last
// character first. The read-line call pops a maximum-length word, then
// pushes the line's characters (last character first, so the first
// character ends up nearest the top) followed by their count as a word.
func (iu *InstructionUnit) SystemCall(number uint16) error {
	switch number {
	case SysPrintStringFromStack, SysPrintLineFromStack:
		count, err := iu.stackAcc.PopWord()
		if err != nil {
			return fmt.Errorf("system call 0x%04x: %w", number, err)
		}
		chars := make([]byte, count)
		for i := uint16(0); i < count; i++ {
			b, err := iu.stackAcc.PopByte()
			if err != nil {
				return fmt.Errorf("system call 0x%04x: %w", number, err)
			}
			// Stack order (top to bottom) is char_n ... char_1 with char_n
			// nearest the top, i.e. the first byte popped is the last
			// character of the string.
			chars[count-1-i] = b
		}
		if number == SysPrintStringFromStack {
			return iu.io.WriteString(string(chars))
		}
		return iu.io.WriteLine(string(chars))

	case SysReadLineOntoStack:
		maxLen, err := iu.stackAcc.PopWord()
		if err != nil {
			return fmt.Errorf("system call 0x%04x: %w", number, err)
		}
		line, err := iu.io.ReadLine(int(maxLen))
		if err != nil {
			return fmt.Errorf("system call 0x%04x: %w", number, ErrIO)
		}
		for i := len(line) - 1; i >= 0; i-- {
			if err := iu.stackAcc.PushByte(line[i]); err != nil {
				return fmt.Errorf("system call 0x%04x: %w", number, err)
			}
		}
		return iu.stackAcc.PushWord(uint16(len(line)))

	default:
		return fmt.Errorf("system call 0x%04x: %w", number, ErrUnknownSyscall)
	}
}

// ReturnStackDepth reports how many nested calls are pending - exposed for
// tests verifying linkage is restored to empty after the outermost RET.
func (iu *InstructionUnit) ReturnStackDepth() int {
	return len(iu.returnStack)
}
