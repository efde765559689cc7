// Package transcript holds the conversation of one loop invocation and the
// compaction used to keep prompts bounded.
package transcript

import (
	"slices"
	"strings"
)

const (
	// KeepRecent is how many trailing entries survive compaction.
	KeepRecent = 5

	// compactThreshold is the entry count up to which nothing is dropped.
	compactThreshold = KeepRecent + 1

	separator = "\n\n"
)

// Log is an append-only transcript. The first entry is the task prompt.
// A Log is owned by a single loop and is not safe for concurrent use.
type Log struct {
	entries []string
}

// New creates a log seeded with the task prompt.
func New(prompt string) *Log {
	return &Log{entries: []string{prompt}}
}

// Append adds an entry.
func (l *Log) Append(entry string) {
	l.entries = append(l.entries, entry)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of all entries.
func (l *Log) Entries() []string {
	return slices.Clone(l.entries)
}

// Prompt returns the compacted view joined for prompting.
func (l *Log) Prompt() string {
	return strings.Join(Compact(l.entries), separator)
}

// Recent returns the last n entries joined, truncated to maxChars characters.
func (l *Log) Recent(n, maxChars int) string {
	return Recent(l.entries, n, maxChars)
}

// Compact returns entries unchanged when there are at most six, otherwise
// the first entry followed by the last five. The input is never modified.
func Compact(entries []string) []string {
	if len(entries) <= compactThreshold {
		return slices.Clone(entries)
	}
	out := make([]string, 0, compactThreshold)
	out = append(out, entries[0])
	out = append(out, entries[len(entries)-KeepRecent:]...)
	return out
}

// Recent joins the last n entries and truncates the result to maxChars
// characters. A non-positive maxChars disables truncation.
func Recent(entries []string, n, maxChars int) string {
	if n < len(entries) {
		entries = entries[len(entries)-max(n, 0):]
	}
	s := strings.Join(entries, separator)
	if maxChars > 0 {
		if r := []rune(s); len(r) > maxChars {
			s = string(r[:maxChars])
		}
	}
	return s
}
