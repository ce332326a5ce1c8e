package runtime

// Flag is one of the four status bits shared by the register file and the ALU.
type Flag uint8

const (
	ZERO Flag = 1 << iota
	CARRY
	SIGN
	OVERFLOW
)

// Flags packs the four status bits into one byte. It is owned by the
// flag-bearing register (conventionally AX) and borrowed by the ALU and by
// every other register that wants to observe carry/overflow behavior on
// inc/dec. Because the CPU loop is single-threaded there is no need for an
// atomic or a mutex here - a plain shared pointer is enough.
type Flags struct {
	bits uint8
}

// NewFlags returns a Flags value with every bit cleared.
func NewFlags() *Flags {
	return &Flags{}
}

func (f *Flags) Set(flag Flag) {
	f.bits |= uint8(flag)
}

func (f *Flags) Clear(flag Flag) {
	f.bits &^= uint8(flag)
}

func (f *Flags) IsSet(flag Flag) bool {
	return f.bits&uint8(flag) != 0
}

func (f *Flags) ClearAll() {
	f.bits = 0
}

// SetTo sets or clears flag depending on cond, in one call - convenient for
// the ALU and register inc/dec rules in spec.md §4.1/§4.6 where every flag is
// computed from a boolean predicate.
func (f *Flags) SetTo(flag Flag, cond bool) {
	if cond {
		f.Set(flag)
	} else {
		f.Clear(flag)
	}
}

// Byte returns the packed status byte, e.g. for debug printing.
func (f *Flags) Byte() uint8 {
	return f.bits
}
