package asm

// SymbolKind distinguishes what kind of thing a symbol name refers to.
type SymbolKind int

const (
	SymbolUndefined SymbolKind = iota
	SymbolDataLabel
	SymbolCodeLabel
)

// SymbolRef records one use site of a symbol, for diagnostics.
type SymbolRef struct {
	Line int
	Col  int
}

// Symbol is one entry of the assembler's symbol table (spec.md §4.10).
type Symbol struct {
	Name           string
	Kind           SymbolKind
	PageNumber     int // meaningful only for SymbolDataLabel
	Address        uint16
	SizeBytes      uint16
	AddressResolved bool
	References     []SymbolRef
	DefLine        int
	DefCol         int
}

// SymbolTable tracks every label definition and reference across a program.
type SymbolTable struct {
	symbols map[string]*Symbol
	pages   map[string]int // PAGE directive name -> assigned page number
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*Symbol), pages: make(map[string]int)}
}

// Define records a label definition. Returns an error if the name is already
// defined (spec.md §4.10 rule 1: "duplicates fail").
func (t *SymbolTable) Define(name string, kind SymbolKind, line, col int) error {
	if existing, ok := t.symbols[name]; ok && existing.Kind != SymbolUndefined {
		return newDiag(line, col, CategorySemantic, "duplicate label definition %q (first defined at %d:%d)", name, existing.DefLine, existing.DefCol)
	}
	sym, ok := t.symbols[name]
	if !ok {
		sym = &Symbol{Name: name}
		t.symbols[name] = sym
	}
	sym.Kind = kind
	sym.DefLine = line
	sym.DefCol = col
	return nil
}

// Reference appends a use site, inserting an UNDEFINED placeholder if the
// symbol hasn't been seen yet so forward references resolve later (spec.md
// §4.10 rule 2).
func (t *SymbolTable) Reference(name string, line, col int) *Symbol {
	sym, ok := t.symbols[name]
	if !ok {
		sym = &Symbol{Name: name, Kind: SymbolUndefined}
		t.symbols[name] = sym
	}
	sym.References = append(sym.References, SymbolRef{Line: line, Col: col})
	return sym
}

func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	sym, ok := t.symbols[name]
	return sym, ok
}

// PageNumberFor returns the page number assigned to a PAGE directive name,
// assigning a fresh one in declaration order on first sight (spec.md §4.10
// rule 5). Returns an error if name was already declared.
func (t *SymbolTable) PageNumberFor(name string, line, col int) (int, error) {
	if n, ok := t.pages[name]; ok {
		return n, newDiag(line, col, CategorySemantic, "duplicate PAGE directive %q", name)
	}
	n := len(t.pages)
	t.pages[name] = n
	return n, nil
}

// Undefined returns every symbol still marked SymbolUndefined after the full
// walk (spec.md §4.10 rule 7).
func (t *SymbolTable) Undefined() []*Symbol {
	var out []*Symbol
	for _, sym := range t.symbols {
		if sym.Kind == SymbolUndefined {
			out = append(out, sym)
		}
	}
	return out
}

func (t *SymbolTable) All() map[string]*Symbol {
	return t.symbols
}
