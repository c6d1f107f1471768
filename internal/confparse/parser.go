// Package confparse tokenizes the line-oriented name=value configuration format.
//
// The same tokenizer reads hand-written configuration files and the cached
// repository lists produced by the cache coordinator, so both formats stay
// interchangeable.
package confparse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineSize bounds a single configuration line.
const maxLineSize = 1024 * 1024

// ErrStop can be returned by a Func to stop parsing without reporting an error.
var ErrStop = errors.New("stop parsing")

// Entry is one name/value pair read from a configuration source
type Entry struct {
	// Name is the option name with surrounding whitespace removed
	Name string

	// Value is everything after the first '=' up to the end of the line
	Value string

	// Source is the file name, or empty when parsing a plain reader
	Source string

	// Line is the 1-based line number of the entry
	Line int
}

// Position returns a "source:line" string for diagnostics
func (e Entry) Position() string {
	if e.Source == "" {
		return fmt.Sprintf("line %d", e.Line)
	}
	return fmt.Sprintf("%s:%d", e.Source, e.Line)
}

// Func receives each entry in file order. Returning a non-nil error aborts
// parsing and the error is returned to the caller, except ErrStop which ends
// parsing quietly.
type Func func(e Entry) error

// Parse reads entries from r and hands them to fn.
func Parse(r io.Reader, fn Func) error {
	return parse(r, "", fn)
}

// ParseFile opens path and parses it.
func ParseFile(path string, fn Func) error {
	//nolint:gosec // configuration and cache paths come from trusted configuration
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	return parse(f, path, fn)
}

func parse(r io.Reader, source string, fn Func) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		entry, ok := tokenize(scanner.Text())
		if !ok {
			continue
		}
		entry.Source = source
		entry.Line = lineNo

		if err := fn(entry); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		if source != "" {
			return fmt.Errorf("failed to read %s: %w", source, err)
		}
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	return nil
}

// tokenize splits one line. Blank lines, comments and lines without '=' are skipped.
func tokenize(line string) (Entry, bool) {
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';' {
		return Entry{}, false
	}

	name, value, found := strings.Cut(trimmed, "=")
	if !found {
		return Entry{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, false
	}

	return Entry{Name: name, Value: value}, true
}
