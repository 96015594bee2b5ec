// Package sanitize cleans captured stage output before it is stored or
// served. Build tools write ANSI color codes and carriage-return progress
// lines that are noise everywhere except a live terminal.
package sanitize

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// StripANSI removes ANSI escape sequences and resolves carriage-return
// progress updates, keeping only the final content of each line.
func StripANSI(s string) string {
	s = ansi.Strip(s)
	if !strings.ContainsRune(s, '\r') {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := strings.LastIndexByte(line, '\r'); idx >= 0 {
			lines[i] = line[idx+1:]
		}
	}
	return strings.Join(lines, "\n")
}

// Output cleans a whole stage transcript: ANSI stripped and trailing
// whitespace removed from every line.
func Output(s string) string {
	s = StripANSI(s)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
