package runtime

import "fmt"

// PagedAccessor is the general-purpose code/data accessor from spec.md §4.3.
// It addresses a 256-byte page plus a byte offset; the effective address is
// page*256 + offset. It is an ephemeral capability: it may only be created
// while the owning VMU is PROTECTED, and it carries a fixed AccessMode for
// its whole lifetime.
type PagedAccessor struct {
	vmu   *VMU
	ctx   ContextID
	mode  AccessMode
	page  uint16
}

// NewPagedAccessor mints an accessor bound to ctx. Fails if vmu is not
// PROTECTED or the context does not exist.
func NewPagedAccessor(vmu *VMU, ctx ContextID, mode AccessMode) (*PagedAccessor, error) {
	if !vmu.IsProtected() {
		return nil, fmt.Errorf("new paged accessor: %w", ErrModeViolation)
	}
	if _, err := vmu.getContext(ctx); err != nil {
		return nil, err
	}
	return &PagedAccessor{vmu: vmu, ctx: ctx, mode: mode}, nil
}

func (a *PagedAccessor) SetPage(page uint16) {
	a.page = page
}

func (a *PagedAccessor) Page() uint16 {
	return a.page
}

func (a *PagedAccessor) address(offset byte) uint32 {
	return uint32(a.page)*256 + uint32(offset)
}

func (a *PagedAccessor) ReadByte(offset byte) (byte, error) {
	ctx, err := a.vmu.getContext(a.ctx)
	if err != nil {
		return 0, err
	}
	addr := a.address(offset)
	if addr >= ctx.capacity {
		return 0, fmt.Errorf("read byte at page %d offset %d: %w", a.page, offset, ErrOutOfRange)
	}
	return ctx.data[addr], nil
}

func (a *PagedAccessor) WriteByte(offset byte, v byte) error {
	if a.mode != ReadWrite {
		return fmt.Errorf("write byte at page %d offset %d: %w", a.page, offset, ErrReadOnlyAccessor)
	}
	ctx, err := a.vmu.getContext(a.ctx)
	if err != nil {
		return err
	}
	addr := a.address(offset)
	if addr >= ctx.capacity {
		return fmt.Errorf("write byte at page %d offset %d: %w", a.page, offset, ErrOutOfRange)
	}
	ctx.data[addr] = v
	return nil
}

// ReadWord composes two consecutive little-endian bytes. It fails rather
// than silently advancing to the next page when offset == 255 (see
// SPEC_FULL.md's Open Question decision #2) - the caller must SetPage
// explicitly before reading/writing a word that would otherwise straddle a
// page boundary.
func (a *PagedAccessor) ReadWord(offset byte) (uint16, error) {
	if offset == 255 {
		return 0, fmt.Errorf("read word at page %d offset %d: %w", a.page, offset, ErrPageStraddle)
	}
	lo, err := a.ReadByte(offset)
	if err != nil {
		return 0, err
	}
	hi, err := a.ReadByte(offset + 1)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (a *PagedAccessor) WriteWord(offset byte, v uint16) error {
	if offset == 255 {
		return fmt.Errorf("write word at page %d offset %d: %w", a.page, offset, ErrPageStraddle)
	}
	if err := a.WriteByte(offset, byte(v)); err != nil {
		return err
	}
	return a.WriteByte(offset+1, byte(v>>8))
}

// StackMemAccessor is the direct addr32 accessor from spec.md §4.3 used by
// the Stack component (and handed out to the Instruction Unit for its
// reusable stack accessor). No paging: the address is absolute within the
// owning context.
type StackMemAccessor struct {
	vmu  *VMU
	ctx  ContextID
	mode AccessMode
}

func NewStackMemAccessor(vmu *VMU, ctx ContextID, mode AccessMode) (*StackMemAccessor, error) {
	if !vmu.IsProtected() {
		return nil, fmt.Errorf("new stack memory accessor: %w", ErrModeViolation)
	}
	if _, err := vmu.getContext(ctx); err != nil {
		return nil, err
	}
	return &StackMemAccessor{vmu: vmu, ctx: ctx, mode: mode}, nil
}

func (a *StackMemAccessor) ReadByte(addr uint32) (byte, error) {
	ctx, err := a.vmu.getContext(a.ctx)
	if err != nil {
		return 0, err
	}
	if addr >= ctx.capacity {
		return 0, fmt.Errorf("read byte at %d: %w", addr, ErrOutOfRange)
	}
	return ctx.data[addr], nil
}

func (a *StackMemAccessor) WriteByte(addr uint32, v byte) error {
	if a.mode != ReadWrite {
		return fmt.Errorf("write byte at %d: %w", addr, ErrReadOnlyAccessor)
	}
	ctx, err := a.vmu.getContext(a.ctx)
	if err != nil {
		return err
	}
	if addr >= ctx.capacity {
		return fmt.Errorf("write byte at %d: %w", addr, ErrOutOfRange)
	}
	ctx.data[addr] = v
	return nil
}

func (a *StackMemAccessor) ReadWord(addr uint32) (uint16, error) {
	lo, err := a.ReadByte(addr)
	if err != nil {
		return 0, err
	}
	hi, err := a.ReadByte(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (a *StackMemAccessor) WriteWord(addr uint32, v uint16) error {
	if err := a.WriteByte(addr, byte(v)); err != nil {
		return err
	}
	return a.WriteByte(addr+1, byte(v>>8))
}
