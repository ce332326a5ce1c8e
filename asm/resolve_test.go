package asm

import (
	"testing"

	"github.com/pendragon-vm/pendragon/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAndResolve(t *testing.T, src string) (*CodeGraph, *SymbolTable, []Diagnostic) {
	t.Helper()
	graph, symtab := buildIR(t, src)
	diags := Resolve(graph, symtab)
	return graph, symtab, diags
}

func TestResolveDataAddressesSequentialWithinPage(t *testing.T) {
	_, symtab, diags := buildAndResolve(t, "DATA\na: DB \"ab\"\nb: DW [1,2]\nCODE\nHALT\n")
	require.Empty(t, diags)
	symA, _ := symtab.Lookup("a")
	symB, _ := symtab.Lookup("b")
	assert.Equal(t, uint16(0), symA.Address)
	assert.Equal(t, uint16(2), symB.Address)
	assert.True(t, symA.AddressResolved)
	assert.True(t, symB.AddressResolved)
}

func TestResolveDataAddressesResetPerPage(t *testing.T) {
	_, symtab, diags := buildAndResolve(t, "DATA\nPAGE p1\na: DB \"x\"\nPAGE p2\nb: DB \"y\"\nCODE\nHALT\n")
	require.Empty(t, diags)
	symA, _ := symtab.Lookup("a")
	symB, _ := symtab.Lookup("b")
	assert.Equal(t, uint16(0), symA.Address)
	assert.Equal(t, uint16(0), symB.Address)
}

func TestResolveCodeLabelAddressesAccountForOperandWidth(t *testing.T) {
	_, symtab, diags := buildAndResolve(t, "CODE\nLD AX, 5\ntarget: HALT\n")
	require.Empty(t, diags)
	sym, ok := symtab.Lookup("target")
	require.True(t, ok)
	size, _ := runtime.OperandSize(runtime.OpLdImm)
	assert.Equal(t, uint16(1+int(size)), sym.Address)
}

func TestResolveOperandSubstitutesSymbolAddress(t *testing.T) {
	graph, _, diags := buildAndResolve(t, "DATA\nval: DW [7]\nCODE\nLDA AX, val\nHALT\n")
	require.Empty(t, diags)
	var lda *InstrNode
	for _, n := range graph.Code {
		if in, ok := n.(*InstrNode); ok && in.Mnemonic == "LDA" {
			lda = in
		}
	}
	require.NotNil(t, lda)
	require.Len(t, lda.Operands, 2)
	assert.Equal(t, TOImmediateWord, lda.Operands[1].Kind)
	assert.Equal(t, uint16(0), lda.Operands[1].ImmWord)
}

func TestResolveUndefinedSymbolProducesDiagnostic(t *testing.T) {
	prog, symtab := analyzeOnly(t, "CODE\nJMP ghost\n")
	graph, irDiags := BuildIR(prog, symtab)
	require.Empty(t, irDiags)
	// ghost is referenced but never defined, so no layout pass ever marks
	// its address resolved and Resolve must report it.
	diags2 := Resolve(graph, symtab)
	assert.NotEmpty(t, diags2)
}

func analyzeOnly(t *testing.T, src string) (*Program, *SymbolTable) {
	t.Helper()
	prog, symtab, _ := analyze(t, src)
	return prog, symtab
}
