package runtime

import "fmt"

// ALU performs arithmetic, logic, shift/rotate and compare operations on a
// shared accumulator register (conventionally AX), updating its bound Flags
// after every operation (spec.md §4.6). It is otherwise stateless.
type ALU struct {
	acc *Register
}

// NewALU binds the accumulator. Fails if acc has no bound Flags.
func NewALU(acc *Register) (*ALU, error) {
	if !acc.HasFlags() {
		return nil, fmt.Errorf("new ALU: %w", ErrNoFlags)
	}
	return &ALU{acc: acc}, nil
}

func signBit16(v uint16) bool { return v&0x8000 != 0 }

func (u *ALU) setZS(result uint16) {
	u.acc.flags.SetTo(ZERO, result == 0)
	u.acc.flags.SetTo(SIGN, signBit16(result))
}

func (u *ALU) setZSByte(result byte) {
	u.acc.flags.SetTo(ZERO, result == 0)
	u.acc.flags.SetTo(SIGN, result&0x80 != 0)
}

// Add performs AX += value (16-bit), setting CARRY on unsigned wrap and
// OVERFLOW on signed wrap (0x7FFF+1 or the negative equivalent).
func (u *ALU) Add(value uint16) {
	a := u.acc.GetValue()
	result := a + value
	u.acc.SetValue(result)
	u.acc.flags.SetTo(CARRY, uint32(a)+uint32(value) > 0xFFFF)
	u.acc.flags.SetTo(OVERFLOW, signBit16(a) == signBit16(value) && signBit16(result) != signBit16(a))
	u.setZS(result)
}

// Sub performs AX -= value, setting CARRY on unsigned borrow and OVERFLOW on
// signed wrap.
func (u *ALU) Sub(value uint16) {
	a := u.acc.GetValue()
	result := a - value
	u.acc.SetValue(result)
	u.acc.flags.SetTo(CARRY, a < value)
	u.acc.flags.SetTo(OVERFLOW, signBit16(a) != signBit16(value) && signBit16(result) != signBit16(a))
	u.setZS(result)
}

// Mul keeps the lower 16 bits of a 16x16 multiply; CARRY is set iff the
// discarded upper 16 bits are nonzero.
func (u *ALU) Mul(value uint16) {
	a := u.acc.GetValue()
	full := uint32(a) * uint32(value)
	result := uint16(full)
	u.acc.SetValue(result)
	u.acc.flags.SetTo(CARRY, full>>16 != 0)
	u.acc.flags.Clear(OVERFLOW)
	u.setZS(result)
}

// Div performs integer division; division by zero is fatal per spec.md §9
// Open Question #3.
func (u *ALU) Div(value uint16) error {
	if value == 0 {
		return fmt.Errorf("div: %w", ErrDivisionByZero)
	}
	a := u.acc.GetValue()
	result := a / value
	u.acc.SetValue(result)
	u.acc.flags.Clear(CARRY)
	u.acc.flags.Clear(OVERFLOW)
	u.setZS(result)
	return nil
}

func (u *ALU) Rem(value uint16) error {
	if value == 0 {
		return fmt.Errorf("rem: %w", ErrDivisionByZero)
	}
	a := u.acc.GetValue()
	result := a % value
	u.acc.SetValue(result)
	u.acc.flags.Clear(CARRY)
	u.acc.flags.Clear(OVERFLOW)
	u.setZS(result)
	return nil
}

func (u *ALU) logical(result uint16) {
	u.acc.SetValue(result)
	u.acc.flags.Clear(CARRY)
	u.acc.flags.Clear(OVERFLOW)
	u.setZS(result)
}

func (u *ALU) And(value uint16) { u.logical(u.acc.GetValue() & value) }
func (u *ALU) Or(value uint16)  { u.logical(u.acc.GetValue() | value) }
func (u *ALU) Xor(value uint16) { u.logical(u.acc.GetValue() ^ value) }
func (u *ALU) Not()             { u.logical(^u.acc.GetValue()) }

// Shl shifts left by n, zero-filling, with CARRY taking the last bit shifted
// out (spec.md §9 Open Question #1). n == 16 leaves zero and shifts bit 0 out
// last; any n > 16 also leaves zero, and since its last shifted-out bit is a
// fill zero, CARRY is cleared. n == 0 leaves the value and CARRY unchanged.
func (u *ALU) Shl(n uint16) {
	a := u.acc.GetValue()
	var carry bool
	var result uint16
	switch {
	case n == 0:
		result = a
		carry = u.acc.IsFlagSet(CARRY)
	case n <= 16:
		carry = (a>>(16-n))&1 != 0
		if n == 16 {
			result = 0
		} else {
			result = a << n
		}
	default:
		result = 0
		carry = false
	}
	u.acc.SetValue(result)
	u.acc.flags.SetTo(CARRY, carry)
	u.setZS(result)
}

// Shr is Shl's mirror image: zero-fill from the top, CARRY = last bit
// shifted out.
func (u *ALU) Shr(n uint16) {
	a := u.acc.GetValue()
	var carry bool
	var result uint16
	switch {
	case n == 0:
		result = a
		carry = u.acc.IsFlagSet(CARRY)
	case n <= 16:
		carry = (a>>(n-1))&1 != 0
		if n == 16 {
			result = 0
		} else {
			result = a >> n
		}
	default:
		result = 0
		carry = false
	}
	u.acc.SetValue(result)
	u.acc.flags.SetTo(CARRY, carry)
	u.setZS(result)
}

// Rol rotates left circularly, n mod 16 semantics; CARRY = last bit rotated
// through.
func (u *ALU) Rol(n uint16) {
	n %= 16
	a := u.acc.GetValue()
	var result uint16
	var carry bool
	if n == 0 {
		result = a
		carry = u.acc.IsFlagSet(CARRY)
	} else {
		result = (a << n) | (a >> (16 - n))
		carry = (a>>(16-n))&1 != 0
	}
	u.acc.SetValue(result)
	u.acc.flags.SetTo(CARRY, carry)
	u.setZS(result)
}

func (u *ALU) Ror(n uint16) {
	n %= 16
	a := u.acc.GetValue()
	var result uint16
	var carry bool
	if n == 0 {
		result = a
		carry = u.acc.IsFlagSet(CARRY)
	} else {
		result = (a >> n) | (a << (16 - n))
		carry = (a>>(n-1))&1 != 0
	}
	u.acc.SetValue(result)
	u.acc.flags.SetTo(CARRY, carry)
	u.setZS(result)
}

// Cmp sets flags as Sub(value) would without touching the accumulator, then
// writes a three-way discriminator into it: 0xFFFF if AX < value, 0 if
// equal, 1 if greater (unsigned comparison of the original accumulator).
func (u *ALU) Cmp(value uint16) {
	a := u.acc.GetValue()
	result := a - value
	u.acc.flags.SetTo(CARRY, a < value)
	u.acc.flags.SetTo(OVERFLOW, signBit16(a) != signBit16(value) && signBit16(result) != signBit16(a))
	u.setZS(result)

	switch {
	case a < value:
		u.acc.SetValue(0xFFFF)
	case a == value:
		u.acc.SetValue(0)
	default:
		u.acc.SetValue(1)
	}
}

// --- byte-width variants: operate on the low 8 bits, preserve the high byte ---

func (u *ALU) AddByte(value byte) {
	a := u.acc.GetLowByte()
	result := a + value
	u.acc.SetLowByte(result)
	u.acc.flags.SetTo(CARRY, uint16(a)+uint16(value) > 0xFF)
	u.acc.flags.SetTo(OVERFLOW, (a>>7) == (value>>7) && (result>>7) != (a>>7))
	u.setZSByte(result)
}

func (u *ALU) SubByte(value byte) {
	a := u.acc.GetLowByte()
	result := a - value
	u.acc.SetLowByte(result)
	u.acc.flags.SetTo(CARRY, a < value)
	u.acc.flags.SetTo(OVERFLOW, (a>>7) != (value>>7) && (result>>7) != (a>>7))
	u.setZSByte(result)
}

func (u *ALU) MulByte(value byte) {
	a := u.acc.GetLowByte()
	full := uint16(a) * uint16(value)
	result := byte(full)
	u.acc.SetLowByte(result)
	u.acc.flags.SetTo(CARRY, full>>8 != 0)
	u.acc.flags.Clear(OVERFLOW)
	u.setZSByte(result)
}

func (u *ALU) DivByte(value byte) error {
	if value == 0 {
		return fmt.Errorf("div byte: %w", ErrDivisionByZero)
	}
	a := u.acc.GetLowByte()
	result := a / value
	u.acc.SetLowByte(result)
	u.acc.flags.Clear(CARRY)
	u.acc.flags.Clear(OVERFLOW)
	u.setZSByte(result)
	return nil
}

func (u *ALU) RemByte(value byte) error {
	if value == 0 {
		return fmt.Errorf("rem byte: %w", ErrDivisionByZero)
	}
	a := u.acc.GetLowByte()
	result := a % value
	u.acc.SetLowByte(result)
	u.acc.flags.Clear(CARRY)
	u.acc.flags.Clear(OVERFLOW)
	u.setZSByte(result)
	return nil
}

func (u *ALU) logicalByte(result byte) {
	u.acc.SetLowByte(result)
	u.acc.flags.Clear(CARRY)
	u.acc.flags.Clear(OVERFLOW)
	u.setZSByte(result)
}

func (u *ALU) AndByte(value byte) { u.logicalByte(u.acc.GetLowByte() & value) }
func (u *ALU) OrByte(value byte)  { u.logicalByte(u.acc.GetLowByte() | value) }
func (u *ALU) XorByte(value byte) { u.logicalByte(u.acc.GetLowByte() ^ value) }

func (u *ALU) CmpByte(value byte) {
	a := u.acc.GetLowByte()
	result := a - value
	u.acc.flags.SetTo(CARRY, a < value)
	u.acc.flags.SetTo(OVERFLOW, (a>>7) != (value>>7) && (result>>7) != (a>>7))
	u.setZSByte(result)

	switch {
	case a < value:
		u.acc.SetLowByte(0xFF)
	case a == value:
		u.acc.SetLowByte(0)
	default:
		u.acc.SetLowByte(1)
	}
}
