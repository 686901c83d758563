package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the intake banner with the running version.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Teal to blue gradient, calm on both light and dark terminals.
	s1 := termenv.String("  _       _        _        ").Foreground(p.Color("#2dd4bf"))
	s2 := termenv.String(" (_)_ __ | |_ __ _| | _____ ").Foreground(p.Color("#22d3ee"))
	s3 := termenv.String(" | | '_ \\| __/ _` | |/ / _ \\").Foreground(p.Color("#38bdf8"))
	s4 := termenv.String(" | | | | | || (_| |   <  __/").Foreground(p.Color("#60a5fa"))
	s5 := termenv.String(" |_|_| |_|\\__\\__,_|_|\\_\\___|").Foreground(p.Color("#818cf8"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
	fmt.Println(termenv.String("  surrey clinic intake assistant v" + strings.TrimSpace(version)).Faint())
	fmt.Println()
}
