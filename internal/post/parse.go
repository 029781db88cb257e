package post

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseNested parses a parenthesised numeric structure:
//
//	group := '(' item* ')'
//	item  := number | group
//
// Items are separated by whitespace. The top-level items of s are returned; when s
// is a single outer group its content is returned instead, so "((1 2) (3 4))" gives
// [[1 2] [3 4]].
func ParseNested(s string) ([]interface{}, error) {
	p := &nestedParser{s: s}
	items, err := p.items(0)
	if err != nil {
		return nil, err
	}
	if len(items) == 1 {
		if inner, ok := items[0].([]interface{}); ok {
			return inner, nil
		}
	}
	return items, nil
}

type nestedParser struct {
	s   string
	pos int
}

func (p *nestedParser) items(depth int) ([]interface{}, error) {
	out := []interface{}{}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			if depth > 0 {
				return nil, fmt.Errorf("unclosed group at offset %d", p.pos)
			}
			return out, nil
		}

		switch p.s[p.pos] {
		case '(':
			p.pos++
			group, err := p.items(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, group)
		case ')':
			if depth == 0 {
				return nil, fmt.Errorf("unexpected ')' at offset %d", p.pos)
			}
			p.pos++
			return out, nil
		default:
			start := p.pos
			tok := p.token()
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q at offset %d", tok, start)
			}
			out = append(out, v)
		}
	}
}

func (p *nestedParser) skipSpace() {
	for p.pos < len(p.s) && isSpace(p.s[p.pos]) {
		p.pos++
	}
}

func (p *nestedParser) token() string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '(' || c == ')' || isSpace(c) {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func isSpace(c byte) bool {
	return unicode.IsSpace(rune(c))
}

// ParseRecord parses the fields after a probe timestamp with an explicit stack:
// '(' opens a level, ')' closes it into its parent and bare numbers are appended to
// the current level. "1 2" gives [1 2]; "(1 2 3) (4 5 6)" gives [[1 2 3] [4 5 6]].
func ParseRecord(s string) ([]interface{}, error) {
	stack := [][]interface{}{{}}
	var num strings.Builder

	flush := func() error {
		if num.Len() == 0 {
			return nil
		}
		v, err := strconv.ParseFloat(num.String(), 64)
		if err != nil {
			return fmt.Errorf("bad number %q", num.String())
		}
		num.Reset()
		top := len(stack) - 1
		stack[top] = append(stack[top], v)
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '(':
			if err := flush(); err != nil {
				return nil, err
			}
			stack = append(stack, []interface{}{})
		case c == ')':
			if err := flush(); err != nil {
				return nil, err
			}
			if len(stack) == 1 {
				return nil, fmt.Errorf("unexpected ')' at offset %d", i)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			stack[len(stack)-1] = append(stack[len(stack)-1], top)
		case isSpace(c):
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			num.WriteByte(c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%d unclosed group(s)", len(stack)-1)
	}
	return stack[0], nil
}
