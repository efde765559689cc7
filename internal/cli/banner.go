package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct{ text, color string }{
	{"  _        _     _", "#818cf8"},
	{" | |_ __ _| |__ | | ___   ___  _ __", "#a78bfa"},
	{" | __/ _` | '_ \\| |/ _ \\ / _ \\| '_ \\", "#c084fc"},
	{" | || (_| | |_) | | (_) | (_) | |_) |", "#e879f9"},
	{"  \\__\\__,_|_.__/|_|\\___/ \\___/| .__/", "#f472b6"},
	{"                              |_|", "#fb7185"},
}

// PrintBanner writes the tabloop banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(out)
	for _, l := range bannerLines {
		fmt.Fprintln(out, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintf(out, "  v%s\n\n", strings.TrimSpace(version))
}
