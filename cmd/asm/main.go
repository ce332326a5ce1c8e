package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendragon-vm/pendragon/asm"
)

var (
	outPath string
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "asm <input.asm>",
		Short: "Assemble a Pendragon source file into a loadable binary",
		Args:  cobra.ExactArgs(1),
		RunE:  runAssemble,
	}
	root.Flags().StringVarP(&outPath, "out", "o", "", "output binary path (default: input name with .bin)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each assembly stage as it runs")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAssemble(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	src, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}

	if outPath == "" {
		ext := filepath.Ext(inputPath)
		outPath = strings.TrimSuffix(inputPath, ext) + ".bin"
	}

	var diags []asm.Diagnostic

	if verbose {
		fmt.Println("lexing...")
	}
	lexer := asm.NewLexer(string(src))
	tokens := lexer.Tokenize()
	diags = append(diags, lexer.Diags...)

	if verbose {
		fmt.Println("parsing...")
	}
	parser := asm.NewParser(tokens)
	program := parser.Parse()
	diags = append(diags, parser.Diags...)

	if verbose {
		fmt.Println("analyzing...")
	}
	symtab, semDiags := asm.Analyze(program)
	diags = append(diags, semDiags...)

	if len(diags) == 0 {
		if verbose {
			fmt.Println("building ir...")
		}
		graph, irDiags := asm.BuildIR(program, symtab)
		diags = append(diags, irDiags...)

		if len(diags) == 0 {
			if verbose {
				fmt.Println("resolving addresses...")
			}
			diags = append(diags, asm.Resolve(graph, symtab)...)

			if len(diags) == 0 {
				if verbose {
					fmt.Println("encoding...")
				}
				data := asm.EncodeData(graph)
				code, encodeDiags := asm.EncodeCode(graph)
				diags = append(diags, encodeDiags...)

				if len(diags) == 0 {
					programName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
					out := asm.BuildBinary(programName, data, code)
					if err := os.WriteFile(outPath, out, 0o644); err != nil {
						return fmt.Errorf("writing %s: %w", outPath, err)
					}
					if verbose {
						fmt.Printf("wrote %s (%d bytes)\n", outPath, len(out))
					}
				}
			}
		}
	}

	if len(diags) > 0 {
		for _, d := range diags {
			fmt.Fprintln(os.Stderr, d.Error())
		}
		return fmt.Errorf("%d error(s)", len(diags))
	}

	return nil
}
