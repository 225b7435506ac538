package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the fsmlink banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   __                _ _       _    ", "#818cf8"},
		{"  / _|___ _ __ ___  | (_)_ __ | | __", "#a78bfa"},
		{" | |_/ __| '_ ` _ \\ | | | '_ \\| |/ /", "#c084fc"},
		{" |  _\\__ \\ | | | | || | | | | |   < ", "#e879f9"},
		{" |_| |___/_| |_| |_||_|_|_| |_|_|\\_\\", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  v"+strings.TrimSpace(version)).Foreground(p.Color("#fb7185")).Faint())
	fmt.Fprintln(w)
}
