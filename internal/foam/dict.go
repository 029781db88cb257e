package foam

import (
	"fmt"
	"os"
	"strings"
)

// Dict is a line-oriented view of a dictionary file. Lines keep their terminators
// so an unedited file is written back byte for byte.
type Dict struct {
	Path  string
	lines []string
}

// ReadDict loads the dictionary at path. A missing file wraps ErrNotExist.
func ReadDict(path string) (*Dict, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, err
	}
	return &Dict{Path: path, lines: strings.SplitAfter(string(b), "\n")}, nil
}

// firstToken returns the first whitespace separated token of line.
func firstToken(line string) string {
	f := strings.Fields(line)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func (d *Dict) index(key string) int {
	for i, line := range d.lines {
		if firstToken(line) == key {
			return i
		}
	}
	return -1
}

// Line returns the first line whose first token is key.
func (d *Dict) Line(key string) (string, bool) {
	i := d.index(key)
	if i < 0 {
		return "", false
	}
	return d.lines[i], true
}

// Set replaces the first line whose first token is key with "<key>\t\t\t<value>;",
// keeping the line's indentation. It never inserts a key; false means key is absent.
func (d *Dict) Set(key, value string) bool {
	i := d.index(key)
	if i < 0 {
		return false
	}
	d.lines[i] = indentOf(d.lines[i]) + key + "\t\t\t" + value + ";" + lineEnding(d.lines[i])
	return true
}

// replace swaps line i for text, keeping the original terminator.
func (d *Dict) replace(i int, text string) {
	d.lines[i] = text + lineEnding(d.lines[i])
}

// Each calls fn for each line whose first token is key. A non-empty return
// replaces the line. It reports how many lines matched.
func (d *Dict) Each(key string, fn func(line string) string) int {
	n := 0
	for i, line := range d.lines {
		if firstToken(line) != key {
			continue
		}
		n++
		if repl := fn(strings.TrimRight(line, "\r\n")); repl != "" {
			d.replace(i, repl)
		}
	}
	return n
}

// String returns the current file content.
func (d *Dict) String() string {
	return strings.Join(d.lines, "")
}

// Write stores the dictionary back to its path.
func (d *Dict) Write() error {
	return os.WriteFile(d.Path, []byte(d.String()), 0o644)
}

func indentOf(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func lineEnding(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	}
	return ""
}
