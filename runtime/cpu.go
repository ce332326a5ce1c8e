package runtime

import (
	"encoding/binary"
	"fmt"
)

// CPU owns the register file, the data-memory accessor, and the
// fetch/decode/dispatch loop described in spec.md §4.7. It composes the
// lower-level components (VMU, Stack, InstructionUnit, ALU) rather than
// reimplementing any of their invariants.
type CPU struct {
	vmu   *VMU
	flags *Flags
	regs  map[RegisterCode]*Register

	stack    *Stack
	stackAcc *StackAccessor
	iu       *InstructionUnit
	alu      *ALU

	dataCtx ContextID
	dataAcc *PagedAccessor

	halted bool
	err    error
}

// NewCPU wires a fresh register file (AX bound to shared Flags), a primary
// data context of dataCapacity bytes, and the Stack/InstructionUnit/ALU
// handed in by the caller (constructed in UNPROTECTED mode beforehand, per
// spec.md §4.2's "set up contexts before protecting" discipline).
func NewCPU(vmu *VMU, stack *Stack, iu *InstructionUnit, dataCapacity uint32) (*CPU, error) {
	flags := NewFlags()

	regs := map[RegisterCode]*Register{
		AX: NewRegister(),
		BX: NewRegister(),
		CX: NewRegister(),
		DX: NewRegister(),
		EX: NewRegister(),
	}
	regs[AX].BindFlags(flags)

	alu, err := NewALU(regs[AX])
	if err != nil {
		return nil, fmt.Errorf("new cpu: %w", err)
	}

	dataCtx, err := vmu.CreateContext(dataCapacity)
	if err != nil {
		return nil, fmt.Errorf("new cpu: %w", err)
	}

	return &CPU{
		vmu:     vmu,
		flags:   flags,
		regs:    regs,
		stack:   stack,
		iu:      iu,
		alu:     alu,
		dataCtx: dataCtx,
	}, nil
}

// Activate mints the CPU's own accessors once the VMU has transitioned to
// PROTECTED. Must run after the InstructionUnit's own Activate.
func (c *CPU) Activate() error {
	stackAcc, err := c.stack.NewAccessor(ReadWrite)
	if err != nil {
		return fmt.Errorf("activate cpu: %w", err)
	}
	dataAcc, err := NewPagedAccessor(c.vmu, c.dataCtx, ReadWrite)
	if err != nil {
		return fmt.Errorf("activate cpu: %w", err)
	}
	c.stackAcc = stackAcc
	c.dataAcc = dataAcc
	return nil
}

func (c *CPU) Register(code RegisterCode) (*Register, error) {
	r, ok := c.regs[code]
	if !ok {
		return nil, fmt.Errorf("register code 0x%02x: %w", code, ErrUnknownOpcode)
	}
	return r, nil
}

func (c *CPU) StatusFlags() *Flags { return c.flags }

func (c *CPU) IsHalted() bool { return c.halted }

// Err returns the fault that stopped the loop, if any.
func (c *CPU) Err() error { return c.err }

// Step executes exactly one fetch/decode/dispatch cycle (spec.md §4.7). It
// returns ErrHalted once the machine has executed HALT; callers drive Run by
// looping Step until it returns a non-nil error.
func (c *CPU) Step() error {
	if c.halted {
		return ErrHalted
	}

	opcodeByte, err := c.iu.ReadByteAtIR()
	if err != nil {
		c.err = err
		return err
	}
	c.iu.AdvanceIR(1)
	op := Opcode(opcodeByte)

	size, ok := OperandSize(op)
	if !ok {
		err := fmt.Errorf("opcode 0x%02x at ir %d: %w", opcodeByte, c.iu.GetIR()-1, ErrUnknownOpcode)
		c.err = err
		return err
	}
	operands, err := c.iu.ReadOperandBytes(size)
	if err != nil {
		c.err = err
		return err
	}
	c.iu.AdvanceIR(uint16(size))

	if err := c.dispatch(op, operands); err != nil {
		c.err = fmt.Errorf("opcode 0x%02x: %w", opcodeByte, err)
		return c.err
	}

	if op == OpHalt {
		c.halted = true
	}
	return nil
}

// Run drives Step until a fault or HALT. ErrHalted is not itself a fault: it
// is returned to the caller to distinguish a clean stop from every other
// error.
func (c *CPU) Run() error {
	for {
		if err := c.Step(); err != nil {
			return err
		}
	}
}

func regAt(regs map[RegisterCode]*Register, code byte) (*Register, error) {
	r, ok := regs[RegisterCode(code)]
	if !ok {
		return nil, fmt.Errorf("register code 0x%02x: %w", code, ErrUnknownOpcode)
	}
	return r, nil
}

func word(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

func (c *CPU) reg(code byte) (*Register, error) { return regAt(c.regs, code) }

// dispatch routes one decoded instruction to its handler. Handlers only see
// the operand bytes already read by Step; per spec.md §4.7 they never read
// further from the code stream.
func (c *CPU) dispatch(op Opcode, b []byte) error {
	switch op {
	case OpNop:
		return nil
	case OpHalt:
		return nil

	// --- data movement ---
	case OpLdImm:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		r.SetValue(word(b[1:3]))
		return nil
	case OpLdReg:
		dst, err := c.reg(b[0])
		if err != nil {
			return err
		}
		src, err := c.reg(b[1])
		if err != nil {
			return err
		}
		dst.SetValue(src.GetValue())
		return nil
	case OpSwp:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		r.Swap()
		return nil
	case OpLdhImm:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		r.SetHighByte(b[1])
		return nil
	case OpLdhReg:
		dst, err := c.reg(b[0])
		if err != nil {
			return err
		}
		src, err := c.reg(b[1])
		if err != nil {
			return err
		}
		dst.SetHighByte(src.GetLowByte())
		return nil
	case OpLdlImm:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		r.SetLowByte(b[1])
		return nil
	case OpLdlReg:
		dst, err := c.reg(b[0])
		if err != nil {
			return err
		}
		src, err := c.reg(b[1])
		if err != nil {
			return err
		}
		dst.SetLowByte(src.GetLowByte())
		return nil

	case OpLda, OpLdab, OpLdah, OpLdal:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		return c.loadFromAddress(op, r, word(b[1:3]))

	case OpLdaRegRegaddr, OpLdabRegRegaddr, OpLdahRegRegaddr:
		dst, err := c.reg(b[0])
		if err != nil {
			return err
		}
		addrReg, err := c.reg(b[1])
		if err != nil {
			return err
		}
		var loadOp Opcode
		switch op {
		case OpLdaRegRegaddr:
			loadOp = OpLda
		case OpLdabRegRegaddr:
			loadOp = OpLdab
		default:
			loadOp = OpLdah
		}
		return c.loadFromAddress(loadOp, dst, addrReg.GetValue())

	case OpSta:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		return c.dataAcc.WriteWord(byte(word(b[1:3])), r.GetValue())
	case OpStah:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		return c.dataAcc.WriteByte(byte(word(b[1:3])), r.GetHighByte())
	case OpStal:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		return c.dataAcc.WriteByte(byte(word(b[1:3])), r.GetLowByte())

	// --- stack ---
	case OpPush:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		return c.stackAcc.PushWord(r.GetValue())
	case OpPushh:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		return c.stackAcc.PushByte(r.GetHighByte())
	case OpPushl:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		return c.stackAcc.PushByte(r.GetLowByte())
	case OpPop:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		v, err := c.stackAcc.PopWord()
		if err != nil {
			return err
		}
		r.SetValue(v)
		return nil
	case OpPoph:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		v, err := c.stackAcc.PopByte()
		if err != nil {
			return err
		}
		r.SetHighByte(v)
		return nil
	case OpPopl:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		v, err := c.stackAcc.PopByte()
		if err != nil {
			return err
		}
		r.SetLowByte(v)
		return nil
	case OpPeek:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		v, err := c.stackAcc.PeekWord()
		if err != nil {
			return err
		}
		r.SetValue(v)
		return nil
	case OpPeekf:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		v, err := c.stackAcc.PeekWordFromFrame(0)
		if err != nil {
			return err
		}
		r.SetValue(v)
		return nil
	case OpPeekb:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		v, err := c.stackAcc.PeekByte()
		if err != nil {
			return err
		}
		r.SetLowByte(v)
		return nil
	case OpPeekfb:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		v, err := c.stackAcc.PeekByteFromFrame(0)
		if err != nil {
			return err
		}
		r.SetLowByte(v)
		return nil
	case OpFlsh:
		c.stackAcc.Flush()
		return nil
	case OpPushw:
		return c.stackAcc.PushWord(word(b))
	case OpPushb:
		return c.stackAcc.PushByte(b[0])

	// --- paging / frames ---
	case OpPageImm:
		page := word(b[0:2])
		ctx := ContextID(word(b[2:4]))
		return c.setDataPage(ctx, page)
	case OpPageReg:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		ctx := ContextID(word(b[1:3]))
		return c.setDataPage(ctx, r.GetValue())
	case OpSetf:
		return c.stackAcc.SetFrameToTop()

	// --- control flow ---
	case OpJmp:
		c.iu.JumpTo(word(b))
		return nil
	case OpJpz:
		c.iu.JumpToIf(word(b), ZERO, true)
		return nil
	case OpJpnz:
		c.iu.JumpToIf(word(b), ZERO, false)
		return nil
	case OpJpc:
		c.iu.JumpToIf(word(b), CARRY, true)
		return nil
	case OpJpnc:
		c.iu.JumpToIf(word(b), CARRY, false)
		return nil
	case OpJps:
		c.iu.JumpToIf(word(b), SIGN, true)
		return nil
	case OpJpns:
		c.iu.JumpToIf(word(b), SIGN, false)
		return nil
	case OpJpo:
		c.iu.JumpToIf(word(b), OVERFLOW, true)
		return nil
	case OpJpno:
		c.iu.JumpToIf(word(b), OVERFLOW, false)
		return nil
	case OpCall:
		return c.iu.CallSubroutine(word(b), false)
	case OpRet:
		return c.iu.ReturnFromSubroutine()

	// --- arithmetic ---
	case OpAdd:
		return c.arithReg(b[0], c.alu.Add)
	case OpAdh:
		return c.arithRegHigh(b[0], c.alu.Add)
	case OpAdl:
		return c.arithRegLow(b[0], c.alu.Add)
	case OpAdb:
		c.alu.AddByte(b[0])
		return nil

	case OpSub:
		return c.arithReg(b[0], c.alu.Sub)
	case OpSbh:
		return c.arithRegHigh(b[0], c.alu.Sub)
	case OpSbl:
		return c.arithRegLow(b[0], c.alu.Sub)
	case OpSbb:
		c.alu.SubByte(b[0])
		return nil

	case OpMul:
		return c.arithReg(b[0], c.alu.Mul)
	case OpMlh:
		return c.arithRegHigh(b[0], c.alu.Mul)
	case OpMll:
		return c.arithRegLow(b[0], c.alu.Mul)
	case OpMlb:
		c.alu.MulByte(b[0])
		return nil

	case OpDiv:
		return c.arithRegErr(b[0], c.alu.Div)
	case OpDvh:
		return c.arithRegHighErr(b[0], c.alu.Div)
	case OpDvl:
		return c.arithRegLowErr(b[0], c.alu.Div)
	case OpDvb:
		return c.alu.DivByte(b[0])

	case OpRem:
		return c.arithRegErr(b[0], c.alu.Rem)
	case OpRmh:
		return c.arithRegHighErr(b[0], c.alu.Rem)
	case OpRml:
		return c.arithRegLowErr(b[0], c.alu.Rem)
	case OpRmb:
		return c.alu.RemByte(b[0])

	// --- logical ---
	case OpAnd:
		return c.arithReg(b[0], c.alu.And)
	case OpAnh:
		return c.arithRegHigh(b[0], c.alu.And)
	case OpAnl:
		return c.arithRegLow(b[0], c.alu.And)
	case OpAnb:
		c.alu.AndByte(b[0])
		return nil

	case OpOr:
		return c.arithReg(b[0], c.alu.Or)
	case OpOrh:
		return c.arithRegHigh(b[0], c.alu.Or)
	case OpOrl:
		return c.arithRegLow(b[0], c.alu.Or)
	case OpOrb:
		c.alu.OrByte(b[0])
		return nil

	case OpXor:
		return c.arithReg(b[0], c.alu.Xor)
	case OpXoh:
		return c.arithRegHigh(b[0], c.alu.Xor)
	case OpXol:
		return c.arithRegLow(b[0], c.alu.Xor)
	case OpXob:
		c.alu.XorByte(b[0])
		return nil

	case OpNot:
		c.alu.Not()
		return nil
	case OpNotb:
		axLow, _ := c.reg(byte(AX))
		axLow.SetLowByte(^axLow.GetLowByte())
		return nil
	case OpNoth:
		ax, _ := c.reg(byte(AX))
		ax.SetHighByte(^ax.GetHighByte())
		return nil
	case OpNotl:
		ax, _ := c.reg(byte(AX))
		ax.SetLowByte(^ax.GetLowByte())
		return nil

	// --- shift/rotate ---
	case OpShl:
		return c.arithReg(b[0], c.alu.Shl)
	case OpSlh:
		return c.arithRegHigh(b[0], c.alu.Shl)
	case OpSll:
		return c.arithRegLow(b[0], c.alu.Shl)
	case OpSlb:
		c.alu.Shl(uint16(b[0]))
		return nil

	case OpShr:
		return c.arithReg(b[0], c.alu.Shr)
	case OpShrh:
		return c.arithRegHigh(b[0], c.alu.Shr)
	case OpShrl:
		return c.arithRegLow(b[0], c.alu.Shr)
	case OpShrb:
		c.alu.Shr(uint16(b[0]))
		return nil

	case OpRol:
		return c.arithReg(b[0], c.alu.Rol)
	case OpRolh:
		return c.arithRegHigh(b[0], c.alu.Rol)
	case OpRoll:
		return c.arithRegLow(b[0], c.alu.Rol)
	case OpRolb:
		c.alu.Rol(uint16(b[0]))
		return nil

	case OpRor:
		return c.arithReg(b[0], c.alu.Ror)
	case OpRorh:
		return c.arithRegHigh(b[0], c.alu.Ror)
	case OpRorl:
		return c.arithRegLow(b[0], c.alu.Ror)
	case OpRorb:
		c.alu.Ror(uint16(b[0]))
		return nil

	// --- compare/adjust ---
	case OpInc:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		r.Inc()
		return nil
	case OpDec:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		r.Dec()
		return nil
	case OpCmpRegReg:
		r, err := c.reg(b[0])
		if err != nil {
			return err
		}
		c.alu.Cmp(r.GetValue())
		return nil
	case OpCmpRegImm:
		c.alu.Cmp(word(b))
		return nil
	case OpCph:
		// Compare AX's high byte: swap it into the low half for CmpByte,
		// then swap back so the low byte is preserved.
		c.alu.acc.Swap()
		c.alu.CmpByte(b[0])
		c.alu.acc.Swap()
		return nil
	case OpCpl:
		c.alu.CmpByte(b[0])
		return nil

	// --- syscall ---
	case OpSys:
		return c.iu.SystemCall(word(b))

	default:
		return ErrUnknownOpcode
	}
}

// loadFromAddress reads from the data accessor at the current page and
// dispatches on which LDA* variant is in play: word, byte, or high-byte.
func (c *CPU) loadFromAddress(op Opcode, dst *Register, addr uint16) error {
	offset := byte(addr)
	switch op {
	case OpLda:
		v, err := c.dataAcc.ReadWord(offset)
		if err != nil {
			return err
		}
		dst.SetValue(v)
		return nil
	case OpLdab:
		v, err := c.dataAcc.ReadByte(offset)
		if err != nil {
			return err
		}
		dst.SetLowByte(v)
		return nil
	case OpLdah:
		v, err := c.dataAcc.ReadByte(offset)
		if err != nil {
			return err
		}
		dst.SetHighByte(v)
		return nil
	case OpLdal:
		v, err := c.dataAcc.ReadByte(offset)
		if err != nil {
			return err
		}
		dst.SetLowByte(v)
		return nil
	default:
		return ErrUnknownOpcode
	}
}

// setDataPage re-mints the CPU's data accessor against ctx (if it differs
// from the currently bound context) and selects page within it.
func (c *CPU) setDataPage(ctx ContextID, page uint16) error {
	if ctx != c.dataCtx {
		acc, err := NewPagedAccessor(c.vmu, ctx, ReadWrite)
		if err != nil {
			return err
		}
		c.dataAcc = acc
		c.dataCtx = ctx
	}
	c.dataAcc.SetPage(page)
	return nil
}

func (c *CPU) arithReg(code byte, op func(uint16)) error {
	r, err := c.reg(code)
	if err != nil {
		return err
	}
	op(r.GetValue())
	return nil
}

func (c *CPU) arithRegHigh(code byte, op func(uint16)) error {
	r, err := c.reg(code)
	if err != nil {
		return err
	}
	op(uint16(r.GetHighByte()))
	return nil
}

func (c *CPU) arithRegLow(code byte, op func(uint16)) error {
	r, err := c.reg(code)
	if err != nil {
		return err
	}
	op(uint16(r.GetLowByte()))
	return nil
}

func (c *CPU) arithRegErr(code byte, op func(uint16) error) error {
	r, err := c.reg(code)
	if err != nil {
		return err
	}
	return op(r.GetValue())
}

func (c *CPU) arithRegHighErr(code byte, op func(uint16) error) error {
	r, err := c.reg(code)
	if err != nil {
		return err
	}
	return op(uint16(r.GetHighByte()))
}

func (c *CPU) arithRegLowErr(code byte, op func(uint16) error) error {
	r, err := c.reg(code)
	if err != nil {
		return err
	}
	return op(uint16(r.GetLowByte()))
}
