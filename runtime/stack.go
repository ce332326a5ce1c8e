package runtime

import "fmt"

// Stack is the upward-growing call stack from spec.md §4.4: one memory
// context plus a next-free-position pointer sp and a signed frame pointer
// fp (-1 means "no frame"). All access happens through a StackAccessor that
// carries the capability's AccessMode.
type Stack struct {
	vmu      *VMU
	ctx      ContextID
	capacity uint32
	sp       uint32
	fp       int32
}

// NewStack creates the stack's backing context (requires UNPROTECTED mode,
// same as any other context) and returns the Stack wrapping it.
func NewStack(vmu *VMU, capacity uint32) (*Stack, error) {
	ctx, err := vmu.CreateContext(capacity)
	if err != nil {
		return nil, fmt.Errorf("new stack: %w", err)
	}
	return &Stack{vmu: vmu, ctx: ctx, capacity: capacity, sp: 0, fp: -1}, nil
}

func (s *Stack) GetSP() uint32     { return s.sp }
func (s *Stack) GetFP() int32      { return s.fp }
func (s *Stack) GetCapacity() uint32 { return s.capacity }
func (s *Stack) GetSize() uint32   { return s.sp }
func (s *Stack) IsEmpty() bool     { return s.sp == uint32(s.fp+1) }

// SetFramePointer sets fp directly. v must be in [-1, capacity).
func (s *Stack) SetFramePointer(v int32) error {
	if v < -1 || v >= int32(s.capacity) {
		return fmt.Errorf("set frame pointer to %d: %w", v, ErrBadFramePointer)
	}
	s.fp = v
	return nil
}

// SetFrameToTop makes the most recently pushed byte the new frame base.
func (s *Stack) SetFrameToTop() error {
	return s.SetFramePointer(int32(s.sp) - 1)
}

// Flush discards the current frame's locals without touching anything at or
// below fp: sp := fp + 1.
func (s *Stack) Flush() {
	s.sp = uint32(s.fp + 1)
}

// StackAccessor is the capability-scoped accessor vended by a Stack: it
// carries an AccessMode and the push/pop/peek/frame operations of spec.md
// §4.4. Creating one requires the owning VMU to be PROTECTED.
type StackAccessor struct {
	stack *Stack
	raw   *StackMemAccessor
	mode  AccessMode
}

// NewAccessor mints a stack accessor. Fails unless the VMU is PROTECTED.
func (s *Stack) NewAccessor(mode AccessMode) (*StackAccessor, error) {
	raw, err := NewStackMemAccessor(s.vmu, s.ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("new stack accessor: %w", err)
	}
	return &StackAccessor{stack: s, raw: raw, mode: mode}, nil
}

func (a *StackAccessor) requireWritable(op string) error {
	if a.mode != ReadWrite {
		return fmt.Errorf("%s: %w", op, ErrReadOnlyAccessor)
	}
	return nil
}

func (a *StackAccessor) PushByte(v byte) error {
	if err := a.requireWritable("push byte"); err != nil {
		return err
	}
	s := a.stack
	if s.sp+1 > s.capacity {
		return fmt.Errorf("push byte: %w", ErrStackOverflow)
	}
	if err := a.raw.WriteByte(s.sp, v); err != nil {
		return err
	}
	s.sp++
	return nil
}

func (a *StackAccessor) PushWord(v uint16) error {
	if err := a.requireWritable("push word"); err != nil {
		return err
	}
	s := a.stack
	if s.sp+2 > s.capacity {
		return fmt.Errorf("push word: %w", ErrStackOverflow)
	}
	if err := a.raw.WriteWord(s.sp, v); err != nil {
		return err
	}
	s.sp += 2
	return nil
}

func (a *StackAccessor) popCheck(n uint32) error {
	s := a.stack
	if s.sp < uint32(s.fp+1)+n {
		return fmt.Errorf("pop: %w", ErrPopBelowFrame)
	}
	return nil
}

func (a *StackAccessor) PopByte() (byte, error) {
	if err := a.requireWritable("pop byte"); err != nil {
		return 0, err
	}
	if err := a.popCheck(1); err != nil {
		return 0, err
	}
	s := a.stack
	s.sp--
	return a.raw.ReadByte(s.sp)
}

func (a *StackAccessor) PopWord() (uint16, error) {
	if err := a.requireWritable("pop word"); err != nil {
		return 0, err
	}
	if err := a.popCheck(2); err != nil {
		return 0, err
	}
	s := a.stack
	s.sp -= 2
	return a.raw.ReadWord(s.sp)
}

func (a *StackAccessor) PeekByte() (byte, error) {
	s := a.stack
	if s.sp < 1 {
		return 0, fmt.Errorf("peek byte: %w", ErrStackUnderflow)
	}
	return a.raw.ReadByte(s.sp - 1)
}

func (a *StackAccessor) PeekWord() (uint16, error) {
	s := a.stack
	if s.sp < 2 {
		return 0, fmt.Errorf("peek word: %w", ErrStackUnderflow)
	}
	return a.raw.ReadWord(s.sp - 2)
}

func (a *StackAccessor) PeekByteFromBase(off uint32) (byte, error) {
	if off >= a.stack.sp {
		return 0, fmt.Errorf("peek byte from base %d: %w", off, ErrOutOfRange)
	}
	return a.raw.ReadByte(off)
}

func (a *StackAccessor) PeekWordFromBase(off uint32) (uint16, error) {
	if off+1 >= a.stack.sp {
		return 0, fmt.Errorf("peek word from base %d: %w", off, ErrOutOfRange)
	}
	return a.raw.ReadWord(off)
}

func (a *StackAccessor) PeekByteFromFrame(off uint32) (byte, error) {
	s := a.stack
	if s.fp < 0 {
		return 0, fmt.Errorf("peek byte from frame %d: %w", off, ErrBadFramePointer)
	}
	return a.PeekByteFromBase(uint32(s.fp) + off)
}

func (a *StackAccessor) PeekWordFromFrame(off uint32) (uint16, error) {
	s := a.stack
	if s.fp < 0 {
		return 0, fmt.Errorf("peek word from frame %d: %w", off, ErrBadFramePointer)
	}
	return a.PeekWordFromBase(uint32(s.fp) + off)
}

func (a *StackAccessor) SetFramePointer(v int32) error {
	return a.stack.SetFramePointer(v)
}

func (a *StackAccessor) SetFrameToTop() error {
	return a.stack.SetFrameToTop()
}

func (a *StackAccessor) Flush() {
	a.stack.Flush()
}

func (a *StackAccessor) IsEmpty() bool {
	return a.stack.IsEmpty()
}

func (a *StackAccessor) GetSP() uint32       { return a.stack.GetSP() }
func (a *StackAccessor) GetFP() int32        { return a.stack.GetFP() }
func (a *StackAccessor) GetCapacity() uint32 { return a.stack.GetCapacity() }
func (a *StackAccessor) GetSize() uint32     { return a.stack.GetSize() }
