package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	var (
		wasmFile = flag.String("wasm", "", "Path to component wasm file")
		dump     = flag.Bool("dump", false, "Print the report without the TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: component-inspect -wasm <file.wasm> [-dump]")
		os.Exit(1)
	}

	if *dump {
		rep, err := loadReport(*wasmFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(rep.dump())
		return
	}

	p := tea.NewProgram(newInspectModel(*wasmFile), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
