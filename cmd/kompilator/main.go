// Command kompilator is the thin CLI shell around the compiler package:
// read a JSON-encoded AST, compile it, write one resolved instruction
// per line. Grounded on cmd/ccompiler/main.go's read-file/report-error/
// exit(1) shape — this shell is otherwise as small as spec.md's
// non-goals allow, since no parser is in scope and the AST arrives
// pre-built.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/compiler"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: kompilator <input.ast.json> <output.mr>")
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2]); err != nil {
		fmt.Fprintln(os.Stderr, "kompilator:", err)
		os.Exit(1)
	}
}

func run(inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}

	var prog ast.Program
	if err := json.Unmarshal(data, &prog); err != nil {
		return fmt.Errorf("parse %s: %w", inPath, err)
	}

	program, err := compiler.Compile(&prog)
	if err != nil {
		return fmt.Errorf("compile %s: %w", inPath, err)
	}

	var out strings.Builder
	for _, in := range program {
		out.WriteString(in.String())
		out.WriteByte('\n')
	}
	if err := os.WriteFile(outPath, []byte(out.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}
