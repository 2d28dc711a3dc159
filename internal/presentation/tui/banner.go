package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the braid ASCII banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{" _               _     _ ", "#818cf8"},
		{"| |__  _ __ __ _(_) __| |", "#a78bfa"},
		{"| '_ \\| '__/ _` | |/ _` |", "#c084fc"},
		{"| |_) | | | (_| | | (_| |", "#e879f9"},
		{"|_.__/|_|  \\__,_|_|\\__,_|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
