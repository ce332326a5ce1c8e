package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundALU(t *testing.T) (*ALU, *Register) {
	t.Helper()
	ax := NewRegister()
	ax.BindFlags(NewFlags())
	alu, err := NewALU(ax)
	require.NoError(t, err)
	return alu, ax
}

func TestNewALURequiresBoundFlags(t *testing.T) {
	_, err := NewALU(NewRegister())
	assert.ErrorIs(t, err, ErrNoFlags)
}

func TestALUAddCarryAndZero(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0xFFFF)
	alu.Add(1)
	assert.Equal(t, uint16(0), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
	assert.True(t, ax.IsFlagSet(ZERO))
	assert.False(t, ax.IsFlagSet(SIGN))
}

func TestALUAddSignedOverflow(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x7FFF)
	alu.Add(1)
	assert.Equal(t, uint16(0x8000), ax.GetValue())
	assert.True(t, ax.IsFlagSet(OVERFLOW))
	assert.True(t, ax.IsFlagSet(SIGN))
	assert.False(t, ax.IsFlagSet(CARRY))
}

func TestALUSubBorrow(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0)
	alu.Sub(1)
	assert.Equal(t, uint16(0xFFFF), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
}

func TestALUMulCarryOnOverflowingProduct(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x1000)
	alu.Mul(0x0010)
	assert.Equal(t, uint16(0x0000), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
}

func TestALUMulNoCarryWithinRange(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(10)
	alu.Mul(4)
	assert.Equal(t, uint16(40), ax.GetValue())
	assert.False(t, ax.IsFlagSet(CARRY))
}

func TestALUDivByZeroFails(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(10)
	err := alu.Div(0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestALUDivAndRem(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(17)
	require.NoError(t, alu.Div(5))
	assert.Equal(t, uint16(3), ax.GetValue())

	ax.SetValue(17)
	require.NoError(t, alu.Rem(5))
	assert.Equal(t, uint16(2), ax.GetValue())
}

func TestALULogicalClearsCarryAndOverflow(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0xFF00)
	ax.SetFlag(CARRY)
	ax.SetFlag(OVERFLOW)
	alu.And(0x0F00)
	assert.Equal(t, uint16(0x0F00), ax.GetValue())
	assert.False(t, ax.IsFlagSet(CARRY))
	assert.False(t, ax.IsFlagSet(OVERFLOW))
}

func TestALUShlCarryIsLastBitShiftedOut(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x8001)
	alu.Shl(1)
	assert.Equal(t, uint16(0x0002), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
}

func TestALUShlBeyondWidthIsZeroWithCarryCleared(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0xFFFF)
	alu.Shl(20)
	assert.Equal(t, uint16(0), ax.GetValue())
	assert.False(t, ax.IsFlagSet(CARRY))
}

func TestALUShlBy16ShiftsOutBit0(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x0001)
	alu.Shl(16)
	assert.Equal(t, uint16(0), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
}

func TestALUShrCarryIsLastBitShiftedOut(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x0003)
	alu.Shr(1)
	assert.Equal(t, uint16(0x0001), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
}

func TestALURolWrapsAround(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x8000)
	alu.Rol(1)
	assert.Equal(t, uint16(0x0001), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
}

func TestALURorWrapsAround(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x0001)
	alu.Ror(1)
	assert.Equal(t, uint16(0x8000), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))
}

func TestALURotateModuloSixteen(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x1234)
	alu.Rol(16)
	assert.Equal(t, uint16(0x1234), ax.GetValue())
}

func TestALUCmpWritesDiscriminatorWithoutAlteringOriginalSemantics(t *testing.T) {
	alu, ax := newBoundALU(t)

	ax.SetValue(5)
	alu.Cmp(10)
	assert.Equal(t, uint16(0xFFFF), ax.GetValue())
	assert.True(t, ax.IsFlagSet(CARRY))

	ax.SetValue(10)
	alu.Cmp(10)
	assert.Equal(t, uint16(0), ax.GetValue())
	assert.True(t, ax.IsFlagSet(ZERO))

	ax.SetValue(20)
	alu.Cmp(10)
	assert.Equal(t, uint16(1), ax.GetValue())
}

func TestALUByteWidthPreservesHighByte(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0xAB00)
	alu.AddByte(0x05)
	assert.Equal(t, byte(0xAB), ax.GetHighByte())
	assert.Equal(t, byte(0x05), ax.GetLowByte())
}

func TestALUDivByteByZeroFails(t *testing.T) {
	alu, ax := newBoundALU(t)
	ax.SetValue(0x1000)
	err := alu.DivByte(0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}
