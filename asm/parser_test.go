package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Program {
	t.Helper()
	l := NewLexer(src)
	toks := l.Tokenize()
	require.Empty(t, l.Diags)
	p := NewParser(toks)
	prog := p.Parse()
	require.Empty(t, p.Diags)
	return prog
}

func TestParserDataSectionWithPageAndDefinitions(t *testing.T) {
	prog := parse(t, "DATA\nPAGE greeting\nmsg: DB \"hi\"\nnums: DW [1,2,3]\n")
	require.Len(t, prog.Sections, 1)
	ds := prog.Sections[0].(*DataSection)
	require.Len(t, ds.Items, 3)
	assert.Equal(t, "greeting", ds.Items[0].(*PageDirective).Name)
	def := ds.Items[1].(*DataDefinition)
	assert.Equal(t, "msg", def.Label)
	assert.True(t, def.IsStr)
	assert.Equal(t, "hi", def.String)
	list := ds.Items[2].(*DataDefinition)
	assert.Equal(t, DataKindDW, list.Kind)
	assert.Equal(t, []uint32{1, 2, 3}, list.Values)
}

func TestParserCodeSectionLabelsAndInstructions(t *testing.T) {
	prog := parse(t, "CODE\nstart:\nLD AX, 5\nADD BX\nHALT\n")
	cs := prog.Sections[0].(*CodeSection)
	require.Len(t, cs.Statements, 4)
	assert.Equal(t, "start", cs.Statements[0].Label)
	instr := cs.Statements[1].Instruction
	require.NotNil(t, instr)
	assert.Equal(t, "LD", instr.Mnemonic)
	require.Len(t, instr.Operands, 2)
	assert.Equal(t, OperandRegister, instr.Operands[0].Kind)
	assert.Equal(t, OperandImmediate, instr.Operands[1].Kind)
}

func TestParserOperandForms(t *testing.T) {
	prog := parse(t, "CODE\nLDA AX, label\nLDA AX, (label+1)\nLDA AX, [label]\nLD AH, label[1]\n")
	cs := prog.Sections[0].(*CodeSection)
	require.Len(t, cs.Statements, 4)
	assert.Equal(t, OperandIdentifier, cs.Statements[0].Instruction.Operands[1].Kind)
	assert.Equal(t, OperandAddressExpr, cs.Statements[1].Instruction.Operands[1].Kind)
	assert.Equal(t, OperandMemoryAccess, cs.Statements[2].Instruction.Operands[1].Kind)
	assert.Equal(t, OperandSugarAccess, cs.Statements[3].Instruction.Operands[1].Kind)
}

func TestParserRecoversAfterSyntaxError(t *testing.T) {
	l := NewLexer("CODE\nLD AX,\nHALT\n")
	toks := l.Tokenize()
	p := NewParser(toks)
	prog := p.Parse()
	assert.NotEmpty(t, p.Diags)
	cs := prog.Sections[0].(*CodeSection)
	last := cs.Statements[len(cs.Statements)-1]
	require.NotNil(t, last.Instruction)
	assert.Equal(t, "HALT", last.Instruction.Mnemonic)
}
