package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, src string) (*Program, *SymbolTable, []Diagnostic) {
	t.Helper()
	l := NewLexer(src)
	toks := l.Tokenize()
	require.Empty(t, l.Diags)
	p := NewParser(toks)
	prog := p.Parse()
	require.Empty(t, p.Diags)
	symtab, diags := Analyze(prog)
	return prog, symtab, diags
}

func TestAnalyzeDuplicateLabelFails(t *testing.T) {
	_, _, diags := analyze(t, "CODE\nstart: NOP\nstart: HALT\n")
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0].Message, "duplicate label")
}

func TestAnalyzeForwardReferenceResolvesLater(t *testing.T) {
	_, symtab, diags := analyze(t, "CODE\nJMP later\nlater: HALT\n")
	assert.Empty(t, diags)
	sym, ok := symtab.Lookup("later")
	require.True(t, ok)
	assert.Equal(t, SymbolCodeLabel, sym.Kind)
}

func TestAnalyzeUndefinedSymbolReported(t *testing.T) {
	_, _, diags := analyze(t, "CODE\nJMP nowhere\n")
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0].Message, "undefined symbol")
}

func TestAnalyzeUnknownRegisterReported(t *testing.T) {
	_, _, diags := analyze(t, "CODE\nADD ZX\n")
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0].Message, "unknown register")
}

func TestAnalyzeLDBracketDereferenceRejected(t *testing.T) {
	prog, _, diags := analyze(t, "DATA\nval: DW [1]\nCODE\nLD AX, [val]\n")
	_ = prog
	require.NotEmpty(t, diags)
	found := false
	for _, d := range diags {
		if d.Message == "LD may not dereference with []; use LDA" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzeLDSugarRewrittenToLDAOrLDAB(t *testing.T) {
	prog, _, diags := analyze(t, "DATA\narr: DW [1,2,3]\nCODE\nLD AX, arr[1]\nLD AH, arr[0]\n")
	assert.Empty(t, diags)
	cs := prog.Sections[1].(*CodeSection)
	assert.Equal(t, "LDA", cs.Statements[0].Instruction.Mnemonic)
	assert.Equal(t, "LDAB", cs.Statements[1].Instruction.Mnemonic)
}

func TestAnalyzeRecordsDataDefinitionSize(t *testing.T) {
	_, symtab, _ := analyze(t, "DATA\nPAGE p\na: DB \"x\"\nCODE\nHALT\n")
	sym, ok := symtab.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, uint16(1), sym.SizeBytes)
}
