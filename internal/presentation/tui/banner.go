package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the sluice banner and the graph name to w.
func PrintBanner(w io.Writer, graphName string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	// Using a subtle gradient-like color scheme (Teal/Cyan)
	lines := []struct{ text, color string }{
		{"      _      _          ", "#2dd4bf"},
		{"  ___| |_  _(_)__ ___   ", "#22d3ee"},
		{" (_-< | || | / _/ -_)  ", "#38bdf8"},
		{" /__/_|\\_,_|_\\__\\___|  ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if graphName != "" {
		fmt.Fprintln(w, termenv.String(" "+graphName).Faint())
	}
	fmt.Fprintln(w)
}
