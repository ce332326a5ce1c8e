package runtime

import "fmt"

// VAddr is a 40-bit virtual address identifying a single byte cell across
// every context the VMU owns. We represent it as a uint64 and never let the
// allocator hand out more than 2^40 addresses.
type VAddr = uint64

const maxVAddr VAddr = 1 << 40

// Mode is the two-state protection mode of the Virtual Memory Unit.
type Mode int

const (
	Unprotected Mode = iota
	Protected
)

// AccessMode is the capability an accessor is minted with.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

// ContextID identifies one memory context. IDs are never reused within the
// lifetime of a VMU even after the context they named is destroyed.
type ContextID uint32

// memContext is one isolated, disjoint region of the virtual address space.
// Content is zero-initialized at creation and never resized.
type memContext struct {
	id       ContextID
	start    VAddr
	capacity uint32
	data     []byte
}

func (c *memContext) end() VAddr {
	return c.start + VAddr(c.capacity)
}

// VMU owns every memory context and gates accessor/context-lifecycle
// operations behind its current Mode (spec.md §4.2). Contexts are held in an
// arena keyed by ContextID so accessors can carry an ID instead of a pointer
// and stay well-defined even if a context is later destroyed.
type VMU struct {
	mode     Mode
	nextID   ContextID
	nextAddr VAddr
	contexts map[ContextID]*memContext
}

// NewVMU returns a VMU starting in UNPROTECTED mode with no contexts.
func NewVMU() *VMU {
	return &VMU{
		contexts: make(map[ContextID]*memContext),
	}
}

func (v *VMU) SetMode(m Mode) {
	v.mode = m
}

func (v *VMU) IsProtected() bool {
	return v.mode == Protected
}

// CreateContext allocates a fresh, disjoint vaddr range of the requested
// capacity and returns its id. Fails outside UNPROTECTED mode.
func (v *VMU) CreateContext(capacity uint32) (ContextID, error) {
	if v.IsProtected() {
		return 0, fmt.Errorf("create context: %w", ErrModeViolation)
	}
	if VAddr(v.nextAddr)+VAddr(capacity) > maxVAddr {
		return 0, fmt.Errorf("create context: %w", ErrOutOfRange)
	}

	v.nextID++
	id := v.nextID
	ctx := &memContext{
		id:       id,
		start:    v.nextAddr,
		capacity: capacity,
		data:     make([]byte, capacity),
	}
	v.contexts[id] = ctx
	v.nextAddr += VAddr(capacity)
	return id, nil
}

// DestroyContext removes a context. Fails outside UNPROTECTED mode or if the
// context does not exist.
func (v *VMU) DestroyContext(id ContextID) error {
	if v.IsProtected() {
		return fmt.Errorf("destroy context %d: %w", id, ErrModeViolation)
	}
	if _, ok := v.contexts[id]; !ok {
		return fmt.Errorf("destroy context %d: %w", id, ErrUnknownContext)
	}
	delete(v.contexts, id)
	return nil
}

func (v *VMU) getContext(id ContextID) (*memContext, error) {
	ctx, ok := v.contexts[id]
	if !ok {
		return nil, fmt.Errorf("context %d: %w", id, ErrUnknownContext)
	}
	return ctx, nil
}

// ContextCapacity returns the capacity of an existing context. Valid in any
// mode.
func (v *VMU) ContextCapacity(id ContextID) (uint32, error) {
	ctx, err := v.getContext(id)
	if err != nil {
		return 0, err
	}
	return ctx.capacity, nil
}

// FindContextForAddress returns the id of the context that owns vaddr, or
// ErrNoContext if none does. Valid in any mode.
func (v *VMU) FindContextForAddress(addr VAddr) (ContextID, error) {
	for id, ctx := range v.contexts {
		if addr >= ctx.start && addr < ctx.end() {
			return id, nil
		}
	}
	return 0, fmt.Errorf("address 0x%010x: %w", addr, ErrNoContext)
}
