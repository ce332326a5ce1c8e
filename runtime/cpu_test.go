package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// machine bundles a fully-activated CPU + InstructionUnit pair, the shape
// every seed program in spec.md §8 needs: a code context, a data context, a
// stack, and a console double.
type machine struct {
	vmu *VMU
	iu  *InstructionUnit
	cpu *CPU
	io  *recordingIO
}

func newMachine(t *testing.T, codeCap, dataCap, stackCap uint32) *machine {
	t.Helper()
	vmu := NewVMU()
	stack, err := NewStack(vmu, stackCap)
	require.NoError(t, err)

	flags := NewFlags()
	io := &recordingIO{}
	iu, err := NewInstructionUnit(vmu, codeCap, stack, flags, io)
	require.NoError(t, err)

	cpu, err := NewCPU(vmu, stack, iu, dataCap)
	require.NoError(t, err)

	vmu.SetMode(Protected)
	require.NoError(t, iu.Activate(true))
	require.NoError(t, cpu.Activate())

	return &machine{vmu: vmu, iu: iu, cpu: cpu, io: io}
}

func assemble(ops ...[]byte) []byte {
	var out []byte
	for _, op := range ops {
		out = append(out, op...)
	}
	return out
}

func TestCPUStepNopAdvancesIR(t *testing.T) {
	m := newMachine(t, 16, 16, 16)
	require.NoError(t, m.iu.LoadProgram([]byte{byte(OpNop), byte(OpHalt)}))

	require.NoError(t, m.cpu.Step())
	assert.Equal(t, uint16(1), m.iu.GetIR())

	require.NoError(t, m.cpu.Step())
	assert.True(t, m.cpu.IsHalted())
}

func TestCPUUnknownOpcodeFaults(t *testing.T) {
	m := newMachine(t, 16, 16, 16)
	require.NoError(t, m.iu.LoadProgram([]byte{0xFD}))

	err := m.cpu.Step()
	assert.ErrorIs(t, err, ErrUnknownOpcode)
}

// Arithmetic with carry/zero on wrap (spec.md §8 scenario 2): LD AX,
// 0xFFFF ; ADD BX (BX == 1) should wrap to zero with CARRY and ZERO set.
func TestCPUArithmeticCarryAndZeroOnWrap(t *testing.T) {
	m := newMachine(t, 32, 16, 16)
	program := assemble(
		[]byte{byte(OpLdImm), byte(AX), 0xFF, 0xFF},
		[]byte{byte(OpLdImm), byte(BX), 0x01, 0x00},
		[]byte{byte(OpAdd), byte(BX)},
		[]byte{byte(OpHalt)},
	)
	require.NoError(t, m.iu.LoadProgram(program))
	err := m.cpu.Run()
	assert.ErrorIs(t, err, ErrHalted)

	ax, err := m.cpu.Register(AX)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), ax.GetValue())
	assert.True(t, m.cpu.StatusFlags().IsSet(CARRY))
	assert.True(t, m.cpu.StatusFlags().IsSet(ZERO))
}

func TestCPUPushPopRoundTripsThroughStack(t *testing.T) {
	m := newMachine(t, 32, 16, 16)
	program := assemble(
		[]byte{byte(OpLdImm), byte(CX), 0x34, 0x12},
		[]byte{byte(OpPush), byte(CX)},
		[]byte{byte(OpPop), byte(DX)},
		[]byte{byte(OpHalt)},
	)
	require.NoError(t, m.iu.LoadProgram(program))
	err := m.cpu.Run()
	assert.ErrorIs(t, err, ErrHalted)

	dx, err := m.cpu.Register(DX)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), dx.GetValue())
}

func TestCPUConditionalJumpSkipsOnFlag(t *testing.T) {
	m := newMachine(t, 32, 16, 16)
	// LD AX, 0 ; JPZ +skip ; LD BX, 0xFFFF (skipped) ; HALT
	program := assemble(
		[]byte{byte(OpLdImm), byte(AX), 0x00, 0x00},
		[]byte{byte(OpCmpRegImm), 0x00, 0x00}, // cmp AX,0 -> ZERO set
		[]byte{byte(OpJpz), 14, 0},
		[]byte{byte(OpLdImm), byte(BX), 0xFF, 0xFF},
		[]byte{byte(OpHalt)},
	)
	require.NoError(t, m.iu.LoadProgram(program))
	err := m.cpu.Run()
	assert.ErrorIs(t, err, ErrHalted)

	bx, err := m.cpu.Register(BX)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), bx.GetValue())
}

func TestCPUCallAndReturnPreservesCallerState(t *testing.T) {
	m := newMachine(t, 32, 16, 16)
	// main: LD BX, 0x0001 ; CALL sub ; HALT
	// sub (addr 9): LD CX, 0x0002 ; RET
	program := assemble(
		[]byte{byte(OpLdImm), byte(BX), 0x01, 0x00}, // 0..3
		[]byte{byte(OpCall), 9, 0},                  // 4..6
		[]byte{byte(OpHalt)},                        // 7
		[]byte{0x00},                                // padding to land sub at 9
		[]byte{byte(OpLdImm), byte(CX), 0x02, 0x00}, // 9..12
		[]byte{byte(OpRet)},                         // 13
	)
	require.NoError(t, m.iu.LoadProgram(program))
	err := m.cpu.Run()
	assert.ErrorIs(t, err, ErrHalted)

	bx, err := m.cpu.Register(BX)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), bx.GetValue())
	cx, err := m.cpu.Register(CX)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), cx.GetValue())
}

func TestCPUSyscallPrintsThroughBasicIO(t *testing.T) {
	m := newMachine(t, 32, 16, 16)
	program := assemble(
		[]byte{byte(OpPushb), 'h'},
		[]byte{byte(OpPushb), 'i'},
		[]byte{byte(OpPushw), 0x02, 0x00},
		[]byte{byte(OpSys), byte(SysPrintLineFromStack & 0xFF), byte(SysPrintLineFromStack >> 8)},
		[]byte{byte(OpHalt)},
	)
	require.NoError(t, m.iu.LoadProgram(program))
	err := m.cpu.Run()
	assert.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, "hi\n", m.io.out.String())
}

func TestCPUDivisionByZeroIsFatal(t *testing.T) {
	m := newMachine(t, 32, 16, 16)
	program := assemble(
		[]byte{byte(OpLdImm), byte(AX), 0x0A, 0x00},
		[]byte{byte(OpLdImm), byte(BX), 0x00, 0x00},
		[]byte{byte(OpDiv), byte(BX)},
		[]byte{byte(OpHalt)},
	)
	require.NoError(t, m.iu.LoadProgram(program))
	err := m.cpu.Run()
	assert.ErrorIs(t, err, ErrDivisionByZero)
}
