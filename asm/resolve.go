package asm

import "github.com/pendragon-vm/pendragon/runtime"

// Resolve runs spec.md §4.12's three address-resolution sub-passes over a
// CodeGraph: data layout, code layout, then operand resolution. It mutates
// the graph and symtab in place.
func Resolve(graph *CodeGraph, symtab *SymbolTable) []Diagnostic {
	var diags []Diagnostic

	diags = append(diags, layoutData(graph, symtab)...)
	layoutCode(graph, symtab)
	diags = append(diags, resolveOperands(graph, symtab)...)

	return diags
}

// layoutData assigns each data block a sequential address within its page
// (spec.md §4.12 pass 1: "addresses are assigned sequentially starting at 0
// within each page").
func layoutData(graph *CodeGraph, symtab *SymbolTable) []Diagnostic {
	var diags []Diagnostic
	nextAddr := make(map[int]uint32)

	for _, block := range graph.DataBlocks {
		addr := nextAddr[block.PageNumber]
		size := uint32(len(block.Bytes))
		if addr+size > 65536 {
			diags = append(diags, newDiag(0, 0, CategoryResolve,
				"data symbol %q at page %d offset %d exceeds the 65536 byte page limit",
				block.Label, block.PageNumber, addr))
			continue
		}
		block.Address = uint16(addr)
		nextAddr[block.PageNumber] = addr + size

		if sym, ok := symtab.Lookup(block.Label); ok {
			sym.Address = block.Address
			sym.SizeBytes = uint16(size)
			sym.AddressResolved = true
		}
	}
	return diags
}

// layoutCode assigns each label/instruction an address in the code address
// space, separate from data addresses (spec.md §4.12 pass 2).
func layoutCode(graph *CodeGraph, symtab *SymbolTable) {
	var addr uint32
	for _, node := range graph.Code {
		switch n := node.(type) {
		case *LabelNode:
			n.Address = uint16(addr)
			if sym, ok := symtab.Lookup(n.Name); ok {
				sym.Address = n.Address
				sym.AddressResolved = true
			}
		case *InstrNode:
			n.Address = uint16(addr)
			addr += uint32(instructionSizeBytes(n))
		}
	}
}

func instructionSizeBytes(n *InstrNode) int {
	size, ok := runtime.OperandSize(n.Opcode)
	if !ok {
		size = 0
	}
	return 1 + int(size)
}

// resolveOperands walks every instruction's operands, substituting known
// symbol addresses into TOAddress/TOExpression operands (spec.md §4.12 pass
// 3). An operand that still references an undefined symbol, or whose
// constant arithmetic overflows 16 bits, produces a diagnostic.
func resolveOperands(graph *CodeGraph, symtab *SymbolTable) []Diagnostic {
	var diags []Diagnostic

	for _, node := range graph.Code {
		instr, ok := node.(*InstrNode)
		if !ok {
			continue
		}
		for i := range instr.Operands {
			op := &instr.Operands[i]
			if op.Kind != TOAddress && op.Kind != TOExpression {
				continue
			}
			if op.Symbol == "" {
				op.Kind = TOImmediateWord
				op.ImmWord = uint16(int32(op.ImmWord) + op.Offset)
				continue
			}
			sym, ok := symtab.Lookup(op.Symbol)
			if !ok || !sym.AddressResolved {
				diags = append(diags, newDiag(instr.Line, instr.Col, CategoryResolve,
					"cannot resolve symbol %q referenced by %s", op.Symbol, instr.Mnemonic))
				continue
			}
			total := int64(sym.Address) + int64(op.Offset)
			if total < 0 || total > 0xFFFF {
				diags = append(diags, newDiag(instr.Line, instr.Col, CategoryResolve,
					"address expression for %q overflows 16 bits (%d)", op.Symbol, total))
				continue
			}
			op.ImmWord = uint16(total)
			if op.Kind == TOAddress {
				op.Kind = TOImmediateWord
			}
			// TOExpression with HasBase stays TOExpression: the encoder adds
			// op.ImmWord (now the resolved base address) to op.BaseReg at
			// runtime via the register-indirect LDA_REG_REGADDR forms.
		}
	}
	return diags
}
