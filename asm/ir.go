package asm

import (
	"fmt"

	"github.com/pendragon-vm/pendragon/runtime"
)

// DataBlock is one laid-out data definition: a label, the page it belongs
// to, and its raw content bytes (the 2-byte size prefix is added at
// emission time, spec.md §4.11).
type DataBlock struct {
	Label      string
	PageNumber int
	Bytes      []byte
	Address    uint16 // filled in by the resolver
}

// CodeNode is either a *LabelNode or an *InstrNode.
type CodeNode interface {
	codeNode()
}

type LabelNode struct {
	Name    string
	Address uint16 // filled in by the resolver
}

func (*LabelNode) codeNode() {}

// TypedOperandKind distinguishes the operand shapes the encoder needs
// (spec.md §4.11).
type TypedOperandKind int

const (
	TOImmediateByte TypedOperandKind = iota
	TOImmediateWord
	TORegister
	TOAddress    // resolved to an IMMEDIATE_WORD once the symbol's address is known
	TOExpression // has a register component; stays symbolic until resolution
)

type TypedOperand struct {
	Kind     TypedOperandKind
	Register runtime.RegisterCode
	ImmByte  byte
	ImmWord  uint16
	Symbol   string
	Offset   int32
	BaseReg  runtime.RegisterCode
	HasBase  bool
}

type InstrNode struct {
	Mnemonic string
	Opcode   runtime.Opcode
	Operands []TypedOperand
	Address  uint16 // filled in by the resolver
	Line     int
	Col      int
}

func (*InstrNode) codeNode() {}

// CodeGraph is the IR builder's output: laid-out-later data blocks plus a
// flat code node list (spec.md §4.11).
type CodeGraph struct {
	DataBlocks []*DataBlock
	Code       []CodeNode
}

// BuildIR lowers a validated Program + SymbolTable to a CodeGraph. PAGE
// injection (spec.md §4.11) tracks an inferred current data page while
// walking code nodes and emits a synthetic `PAGE p, 0` ahead of any operand
// whose referenced data symbol lives on a different page; CALL, RET and JMP
// invalidate the inferred page (conditional jumps do not).
func BuildIR(prog *Program, symtab *SymbolTable) (*CodeGraph, []Diagnostic) {
	graph := &CodeGraph{}
	var diags []Diagnostic
	anonCounter := 0

	for _, sec := range prog.Sections {
		if ds, ok := sec.(*DataSection); ok {
			for _, item := range ds.Items {
				def, ok := item.(*DataDefinition)
				if !ok {
					continue
				}
				sym, _ := symtab.Lookup(def.Label)
				graph.DataBlocks = append(graph.DataBlocks, &DataBlock{
					Label:      def.Label,
					PageNumber: sym.PageNumber,
					Bytes:      dataDefinitionBytes(def),
				})
			}
		}
	}

	currentPage := -1 // "unknown" sentinel
	for _, sec := range prog.Sections {
		cs, ok := sec.(*CodeSection)
		if !ok {
			continue
		}
		for _, stmt := range cs.Statements {
			if stmt.Label != "" {
				graph.Code = append(graph.Code, &LabelNode{Name: stmt.Label})
			}
			if stmt.InlineData != nil {
				anonCounter++
				label := fmt.Sprintf("__inline_data_%d", anonCounter)
				sym := &Symbol{Name: label, Kind: SymbolDataLabel}
				symtab.symbols[label] = sym
				graph.DataBlocks = append(graph.DataBlocks, &DataBlock{
					Label: label,
					Bytes: dataDefinitionBytes(stmt.InlineData),
				})
				graph.Code = append(graph.Code, &LabelNode{Name: stmt.Label + "$data"})
				continue
			}
			if stmt.Instruction == nil {
				continue
			}

			for _, op := range stmt.Instruction.Operands {
				if op.Kind != OperandIdentifier && op.Kind != OperandSugarAccess && op.Kind != OperandAddressExpr {
					continue
				}
				name := referencedDataSymbol(op)
				if name == "" {
					continue
				}
				sym, ok := symtab.Lookup(name)
				if !ok || sym.Kind != SymbolDataLabel {
					continue
				}
				if sym.PageNumber != currentPage {
					graph.Code = append(graph.Code, &InstrNode{
						Mnemonic: "PAGE",
						Opcode:   runtime.OpPageImm,
						Operands: []TypedOperand{
							{Kind: TOImmediateWord, ImmWord: uint16(sym.PageNumber)},
							{Kind: TOImmediateWord, ImmWord: 0},
						},
						Line: stmt.Instruction.Line,
						Col:  stmt.Instruction.Col,
					})
					currentPage = sym.PageNumber
				}
			}

			node, d := lowerInstruction(stmt.Instruction)
			diags = append(diags, d...)
			graph.Code = append(graph.Code, node)

			switch stmt.Instruction.Mnemonic {
			case "CALL", "RET", "JMP":
				currentPage = -1
			}
		}
	}

	return graph, diags
}

func referencedDataSymbol(op Operand) string {
	switch op.Kind {
	case OperandIdentifier:
		return op.Base
	case OperandSugarAccess:
		return op.Base
	case OperandAddressExpr:
		return identifierIn(op.Expr)
	}
	return ""
}

func identifierIn(e Expr) string {
	switch ex := e.(type) {
	case IdentifierExpr:
		return ex.Name
	case BinaryExpr:
		if n := identifierIn(ex.Left); n != "" {
			return n
		}
		return identifierIn(ex.Right)
	}
	return ""
}

// slotKind names what byte shape one operand position encodes to, driven by
// the chosen opcode rather than the AST operand's own syntax - the decoder
// in runtime/cpu.go indexes operand bytes by fixed position per opcode, so
// the encoder has to match that layout exactly regardless of how the value
// was spelled in source (immediate, label, or expression).
type slotKind int

const (
	slotRegister slotKind = iota
	slotImmByte
	slotImmWord // also used for resolved addresses
)

// resolveOpcode picks the concrete Opcode for a mnemonic, disambiguating the
// handful of mnemonics whose encoding depends on an operand's shape (LD,
// LDH, LDL choose between a register-to-register and an immediate form;
// CMP chooses between comparing two registers or a register against an
// immediate; PAGE chooses between its register and immediate forms).
func resolveOpcode(instr *Instruction) (runtime.Opcode, []slotKind, bool) {
	switch instr.Mnemonic {
	case "LD":
		if len(instr.Operands) == 2 && instr.Operands[1].Kind == OperandRegister {
			return runtime.OpLdReg, []slotKind{slotRegister, slotRegister}, true
		}
		return runtime.OpLdImm, []slotKind{slotRegister, slotImmWord}, true
	case "LDH":
		if len(instr.Operands) == 2 && instr.Operands[1].Kind == OperandRegister {
			return runtime.OpLdhReg, []slotKind{slotRegister, slotRegister}, true
		}
		return runtime.OpLdhImm, []slotKind{slotRegister, slotImmByte}, true
	case "LDL":
		if len(instr.Operands) == 2 && instr.Operands[1].Kind == OperandRegister {
			return runtime.OpLdlReg, []slotKind{slotRegister, slotRegister}, true
		}
		return runtime.OpLdlImm, []slotKind{slotRegister, slotImmByte}, true
	case "CMP":
		if len(instr.Operands) == 2 && instr.Operands[1].Kind == OperandRegister {
			return runtime.OpCmpRegReg, []slotKind{slotRegister}, true
		}
		return runtime.OpCmpRegImm, []slotKind{slotImmWord}, true
	case "PAGE":
		if len(instr.Operands) > 0 && instr.Operands[0].Kind == OperandRegister {
			return runtime.OpPageReg, []slotKind{slotRegister, slotImmWord}, true
		}
		return runtime.OpPageImm, []slotKind{slotImmWord, slotImmWord}, true
	}

	op, ok := runtime.MnemonicToOpcode(instr.Mnemonic)
	if !ok {
		return 0, nil, false
	}
	return op, staticSlots(op), true
}

// staticSlots covers every opcode whose operand shape is fixed once the
// opcode is known (everything except the mnemonics resolveOpcode
// disambiguates explicitly above).
func staticSlots(op runtime.Opcode) []slotKind {
	switch op {
	case runtime.OpNop, runtime.OpHalt, runtime.OpFlsh, runtime.OpRet, runtime.OpSetf,
		runtime.OpNot, runtime.OpNotb, runtime.OpNoth, runtime.OpNotl:
		return nil

	case runtime.OpSwp, runtime.OpPush, runtime.OpPushh, runtime.OpPushl,
		runtime.OpPop, runtime.OpPoph, runtime.OpPopl,
		runtime.OpPeek, runtime.OpPeekf, runtime.OpPeekb, runtime.OpPeekfb,
		runtime.OpInc, runtime.OpDec,
		runtime.OpAdd, runtime.OpAdh, runtime.OpAdl,
		runtime.OpSub, runtime.OpSbh, runtime.OpSbl,
		runtime.OpMul, runtime.OpMlh, runtime.OpMll,
		runtime.OpDiv, runtime.OpDvh, runtime.OpDvl,
		runtime.OpRem, runtime.OpRmh, runtime.OpRml,
		runtime.OpAnd, runtime.OpAnh, runtime.OpAnl,
		runtime.OpOr, runtime.OpOrh, runtime.OpOrl,
		runtime.OpXor, runtime.OpXoh, runtime.OpXol,
		runtime.OpShl, runtime.OpSlh, runtime.OpSll,
		runtime.OpShr, runtime.OpShrh, runtime.OpShrl,
		runtime.OpRol, runtime.OpRolh, runtime.OpRoll,
		runtime.OpRor, runtime.OpRorh, runtime.OpRorl:
		return []slotKind{slotRegister}

	case runtime.OpAdb, runtime.OpSbb, runtime.OpMlb, runtime.OpDvb, runtime.OpRmb,
		runtime.OpAnb, runtime.OpOrb, runtime.OpXob,
		runtime.OpSlb, runtime.OpShrb, runtime.OpRolb, runtime.OpRorb,
		runtime.OpCph, runtime.OpCpl, runtime.OpPushb:
		return []slotKind{slotImmByte}

	case runtime.OpLdaRegRegaddr, runtime.OpLdabRegRegaddr, runtime.OpLdahRegRegaddr:
		return []slotKind{slotRegister, slotRegister}

	case runtime.OpLda, runtime.OpLdab, runtime.OpLdah, runtime.OpLdal,
		runtime.OpSta, runtime.OpStah, runtime.OpStal:
		return []slotKind{slotRegister, slotImmWord}

	case runtime.OpJmp, runtime.OpJpz, runtime.OpJpnz, runtime.OpJpc, runtime.OpJpnc,
		runtime.OpJps, runtime.OpJpns, runtime.OpJpo, runtime.OpJpno,
		runtime.OpCall, runtime.OpSys, runtime.OpPushw:
		return []slotKind{slotImmWord}

	default:
		return nil
	}
}

func lowerInstruction(instr *Instruction) (*InstrNode, []Diagnostic) {
	op, slots, ok := resolveOpcode(instr)
	if !ok {
		return &InstrNode{Mnemonic: instr.Mnemonic, Line: instr.Line, Col: instr.Col},
			[]Diagnostic{newDiag(instr.Line, instr.Col, CategoryIR, "unknown mnemonic %q", instr.Mnemonic)}
	}

	node := &InstrNode{Mnemonic: instr.Mnemonic, Opcode: op, Line: instr.Line, Col: instr.Col}
	var diags []Diagnostic
	for i, slot := range slots {
		if i >= len(instr.Operands) {
			diags = append(diags, newDiag(instr.Line, instr.Col, CategoryIR,
				"%s expects %d operand(s), got %d", instr.Mnemonic, len(slots), len(instr.Operands)))
			break
		}
		typed, d := lowerOperand(instr.Operands[i], slot)
		diags = append(diags, d...)
		node.Operands = append(node.Operands, typed)
	}
	return node, diags
}

func lowerOperand(op Operand, slot slotKind) (TypedOperand, []Diagnostic) {
	if slot == slotRegister {
		if op.Kind != OperandRegister {
			return TypedOperand{}, []Diagnostic{newDiag(op.Line, op.Col, CategoryIR, "expected register operand")}
		}
		return TypedOperand{Kind: TORegister, Register: registerCodeFor(op.Register)}, nil
	}

	switch op.Kind {
	case OperandImmediate:
		n := op.Expr.(NumberExpr)
		if slot == slotImmByte {
			return TypedOperand{Kind: TOImmediateByte, ImmByte: byte(n.Value)}, nil
		}
		return TypedOperand{Kind: TOImmediateWord, ImmWord: uint16(n.Value)}, nil
	case OperandIdentifier:
		return TypedOperand{Kind: TOAddress, Symbol: op.Base}, nil
	case OperandAddressExpr, OperandMemoryAccess, OperandSugarAccess:
		return lowerExprOperand(op.Expr, op.Base), nil
	default:
		return TypedOperand{}, []Diagnostic{newDiag(op.Line, op.Col, CategoryIR, "operand shape not valid here")}
	}
}

// lowerExprOperand collapses an expression operand into TOAddress when it
// is purely symbol+constant, or TOExpression when a register participates
// (spec.md §4.11/§4.12 - full constant folding happens in the resolver).
func lowerExprOperand(e Expr, base string) TypedOperand {
	sym, offset, regCode, hasReg := decomposeExpr(e)
	if base != "" && sym == "" {
		sym = base
	}
	if hasReg {
		return TypedOperand{Kind: TOExpression, Symbol: sym, Offset: offset, BaseReg: regCode, HasBase: true}
	}
	return TypedOperand{Kind: TOAddress, Symbol: sym, Offset: offset}
}

func decomposeExpr(e Expr) (symbol string, offset int32, reg runtime.RegisterCode, hasReg bool) {
	switch ex := e.(type) {
	case NumberExpr:
		return "", int32(ex.Value), 0, false
	case IdentifierExpr:
		return ex.Name, 0, 0, false
	case RegisterExpr:
		return "", 0, registerCodeFor(ex.Name), true
	case BinaryExpr:
		ls, lo, lr, lh := decomposeExpr(ex.Left)
		rs, ro, rr, rh := decomposeExpr(ex.Right)
		sign := int32(1)
		if ex.Op == '-' {
			sign = -1
		}
		sym := ls
		if sym == "" {
			sym = rs
		}
		r, h := lr, lh
		if !h {
			r, h = rr, rh
		}
		return sym, lo + sign*ro, r, h
	}
	return "", 0, 0, false
}

func registerCodeFor(name string) runtime.RegisterCode {
	switch name {
	case "AX", "AH", "AL":
		return runtime.AX
	case "BX", "BH", "BL":
		return runtime.BX
	case "CX", "CH", "CL":
		return runtime.CX
	case "DX", "DH", "DL":
		return runtime.DX
	case "EX", "EH", "EL":
		return runtime.EX
	default:
		return 0
	}
}

func dataDefinitionBytes(d *DataDefinition) []byte {
	if d.IsStr {
		return []byte(d.String)
	}
	var out []byte
	width := 1
	if d.Kind == DataKindDW || d.Kind == DataKindDA {
		width = 2
	}
	for _, v := range d.Values {
		if width == 1 {
			out = append(out, byte(v))
		} else {
			out = append(out, byte(v), byte(v>>8))
		}
	}
	return out
}
