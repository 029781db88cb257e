package foam

import (
	"errors"
	"strings"
)

var (
	ErrBlockNotFound = errors.New("block name not found")
	ErrUnbalanced    = errors.New("unbalanced braces")
)

// FindBlock locates the span starting at the first occurrence of name and ending at
// the brace that closes the first block opened after it. end is the index of that
// closing brace. A closing brace seen before any opening brace counts as unbalanced.
func FindBlock(text, name string) (start, end int, err error) {
	start = strings.Index(text, name)
	if start < 0 {
		return -1, -1, ErrBlockNotFound
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return start, -1, ErrUnbalanced
			}
			if depth == 0 {
				return start, i, nil
			}
		}
	}
	return start, -1, ErrUnbalanced
}

// Entry is one "key value;" line of a generated block.
type Entry struct {
	Key   string
	Value string
}

// FormatBlock renders a boundary block:
//
//	name
//		{
//			key		value;
//		}
func FormatBlock(name string, entries []Entry) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("\n\t{\n")
	for _, e := range entries {
		b.WriteString("\t\t")
		b.WriteString(e.Key)
		b.WriteString("\t\t")
		b.WriteString(e.Value)
		b.WriteString(";\n")
	}
	b.WriteString("\t}")
	return b.String()
}

// ReplaceBlock swaps the span found by FindBlock for FormatBlock(name, entries).
// Text before and after the span is kept unchanged.
func ReplaceBlock(text, name string, entries []Entry) (string, error) {
	start, end, err := FindBlock(text, name)
	if err != nil {
		return "", err
	}
	return text[:start] + FormatBlock(name, entries) + text[end+1:], nil
}
