package asm

import "encoding/binary"

// EncodeData serializes every data block as a 2-byte little-endian size
// prefix followed by its raw bytes, in declaration order (spec.md §4.11).
func EncodeData(graph *CodeGraph) []byte {
	var out []byte
	for _, block := range graph.DataBlocks {
		var sizeBuf [2]byte
		binary.LittleEndian.PutUint16(sizeBuf[:], uint16(len(block.Bytes)))
		out = append(out, sizeBuf[:]...)
		out = append(out, block.Bytes...)
	}
	return out
}

// EncodeCode serializes every instruction node as opcode byte + operand
// bytes, per spec.md §4.13's binary emission table. LabelNodes contribute no
// bytes; they exist only to carry a resolved address.
func EncodeCode(graph *CodeGraph) ([]byte, []Diagnostic) {
	var out []byte
	var diags []Diagnostic

	for _, node := range graph.Code {
		instr, ok := node.(*InstrNode)
		if !ok {
			continue
		}
		out = append(out, byte(instr.Opcode))
		for _, op := range instr.Operands {
			bytes, err := encodeOperand(op)
			if err != nil {
				diags = append(diags, newDiag(instr.Line, instr.Col, CategoryEmit, "%s: %s", instr.Mnemonic, err))
				continue
			}
			out = append(out, bytes...)
		}
	}
	return out, diags
}

func encodeOperand(op TypedOperand) ([]byte, error) {
	switch op.Kind {
	case TOImmediateByte:
		return []byte{op.ImmByte}, nil
	case TOImmediateWord:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], op.ImmWord)
		return buf[:], nil
	case TORegister:
		return []byte{byte(op.Register)}, nil
	case TOExpression:
		if !op.HasBase {
			return nil, errUnresolvedExpression
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], op.ImmWord)
		return []byte{byte(op.BaseReg), buf[0], buf[1]}, nil
	case TOAddress:
		return nil, errUnresolvedSymbol
	default:
		return nil, errUnknownOperandKind
	}
}
