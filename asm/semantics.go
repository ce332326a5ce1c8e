package asm

import "strings"

// subByteWidth reports whether a register name addresses an 8-bit half (high
// or low) of a register (used to choose LDA vs LDAB when rewriting
// label[expr] sugar).
func subByteWidth(name string) bool {
	switch strings.ToUpper(name) {
	case "AH", "AL", "BH", "BL", "CH", "CL", "DH", "DL", "EH", "EL":
		return true
	default:
		return false
	}
}

// Analyze runs spec.md §4.10's semantic analysis pass: symbol table
// construction, reference tracking, register validation, bracket-semantics
// rewriting, and PAGE accounting. It mutates prog in place (sugar rewrite)
// and returns the symbol table plus every diagnostic collected.
func Analyze(prog *Program) (*SymbolTable, []Diagnostic) {
	symtab := NewSymbolTable()
	var diags []Diagnostic

	// Pass 1: define every label, assign PAGE numbers to data definitions.
	for _, sec := range prog.Sections {
		switch s := sec.(type) {
		case *DataSection:
			currentPage := 0
			for _, item := range s.Items {
				switch it := item.(type) {
				case *PageDirective:
					n, err := symtab.PageNumberFor(it.Name, it.Line, it.Col)
					if err != nil {
						diags = append(diags, err.(Diagnostic))
					}
					currentPage = n
				case *DataDefinition:
					if err := symtab.Define(it.Label, SymbolDataLabel, it.Line, it.Col); err != nil {
						diags = append(diags, err.(Diagnostic))
					}
					sym, _ := symtab.Lookup(it.Label)
					sym.PageNumber = currentPage
					sym.SizeBytes = dataDefinitionSize(it)
				}
			}
		case *CodeSection:
			for _, stmt := range s.Statements {
				if stmt.Label != "" {
					if err := symtab.Define(stmt.Label, SymbolCodeLabel, stmt.Line, stmt.Col); err != nil {
						diags = append(diags, err.(Diagnostic))
					}
				}
				if stmt.InlineData != nil && stmt.InlineData.Label != "" {
					if err := symtab.Define(stmt.InlineData.Label, SymbolDataLabel, stmt.Line, stmt.Col); err != nil {
						diags = append(diags, err.(Diagnostic))
					}
				}
			}
		}
	}

	// Pass 2: walk operands - validate registers, reference identifiers,
	// rewrite LD sugar, reject LD[] dereference.
	for _, sec := range prog.Sections {
		cs, ok := sec.(*CodeSection)
		if !ok {
			continue
		}
		for i := range cs.Statements {
			stmt := &cs.Statements[i]
			if stmt.Instruction == nil {
				continue
			}
			diags = append(diags, walkInstruction(stmt.Instruction, symtab)...)
		}
	}

	// Pass 3: per-page data size cap (spec.md §4.10 rule 6).
	pageSizes := make(map[int]uint32)
	for _, sym := range symtab.All() {
		if sym.Kind == SymbolDataLabel {
			pageSizes[sym.PageNumber] += uint32(sym.SizeBytes)
		}
	}
	for page, size := range pageSizes {
		if size > 65536 {
			diags = append(diags, newDiag(0, 0, CategorySemantic, "page %d data size %d exceeds 65536 byte cap", page, size))
		}
	}

	// Pass 4: undefined-symbol sweep (spec.md §4.10 rule 7).
	for _, sym := range symtab.Undefined() {
		for _, ref := range sym.References {
			diags = append(diags, newDiag(ref.Line, ref.Col, CategorySemantic, "undefined symbol %q", sym.Name))
		}
	}

	return symtab, diags
}

func dataDefinitionSize(d *DataDefinition) uint16 {
	if d.IsStr {
		return uint16(len(d.String))
	}
	width := 1
	if d.Kind == DataKindDW || d.Kind == DataKindDA {
		width = 2
	}
	return uint16(len(d.Values) * width)
}

// walkInstruction validates register operands, records identifier
// references, and applies bracket-semantics rules (spec.md §4.10 rule 4):
// LD may not dereference with [] (must use LDA); label[expr] sugar on LD is
// rewritten to LDA/LDAB by destination register width.
func walkInstruction(instr *Instruction, symtab *SymbolTable) []Diagnostic {
	var diags []Diagnostic

	for i := range instr.Operands {
		op := &instr.Operands[i]
		switch op.Kind {
		case OperandRegister:
			if !registerNames[strings.ToUpper(op.Register)] {
				diags = append(diags, newDiag(op.Line, op.Col, CategorySemantic, "unknown register %q", op.Register))
			}
		case OperandIdentifier:
			// A name the lexer did not recognise as a register, in a position
			// the instruction encodes as a register, is an unknown register.
			if _, slots, ok := resolveOpcode(instr); ok && i < len(slots) && slots[i] == slotRegister {
				diags = append(diags, newDiag(op.Line, op.Col, CategorySemantic, "unknown register %q", op.Base))
				continue
			}
			symtab.Reference(op.Base, op.Line, op.Col)
		case OperandSugarAccess:
			symtab.Reference(op.Base, op.Line, op.Col)
			diags = append(diags, walkExpr(op.Expr, symtab)...)
		case OperandAddressExpr, OperandMemoryAccess:
			diags = append(diags, walkExpr(op.Expr, symtab)...)
		}
	}

	if instr.Mnemonic == "LD" {
		for i := range instr.Operands {
			op := &instr.Operands[i]
			if op.Kind == OperandMemoryAccess {
				diags = append(diags, newDiag(op.Line, op.Col, CategorySemantic, "LD may not dereference with []; use LDA"))
			}
			if op.Kind == OperandSugarAccess {
				destWidth := "LDA"
				if len(instr.Operands) > 0 && instr.Operands[0].Kind == OperandRegister && subByteWidth(instr.Operands[0].Register) {
					destWidth = "LDAB"
				}
				instr.Mnemonic = destWidth
				op.Kind = OperandAddressExpr
				op.Expr = BinaryExpr{Op: '+', Left: IdentifierExpr{Name: op.Base}, Right: op.Expr}
			}
		}
	}

	return diags
}

func walkExpr(e Expr, symtab *SymbolTable) []Diagnostic {
	switch ex := e.(type) {
	case IdentifierExpr:
		symtab.Reference(ex.Name, 0, 0)
	case BinaryExpr:
		return append(walkExpr(ex.Left, symtab), walkExpr(ex.Right, symtab)...)
	}
	return nil
}
