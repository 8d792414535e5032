package config

import (
	"strconv"
	"strings"
)

// segment is one step of a path: a mapping key or a sequence index.
type segment struct {
	key     string
	index   int
	isIndex bool
}

func (s segment) String() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// parsePath splits a path expression into segments. The accepted grammar
// is a small JSONPath subset:
//
//	$                   the document root
//	a.b.c               mapping fields, with an optional "$." prefix
//	list[2]             sequence index
//	presets["name"]     quoted mapping key, single or double quotes
//
// The root yields no segments.
func parsePath(expr string) ([]segment, error) {
	p := strings.TrimSpace(expr)
	invalid := func(reason string) error {
		return &InvalidPathError{Path: expr, Reason: reason}
	}
	if p == "" {
		return nil, invalid("empty path")
	}
	if strings.HasPrefix(p, "$") {
		p = p[1:]
		if p == "" {
			return nil, nil
		}
		if p[0] != '.' && p[0] != '[' {
			return nil, invalid("expected '.' or '[' after '$'")
		}
		p = strings.TrimPrefix(p, ".")
	}

	var segs []segment
	afterDot := false
	for i := 0; i < len(p); {
		switch p[i] {
		case '.':
			if i == 0 || afterDot {
				return nil, invalid("empty field name")
			}
			afterDot = true
			i++

		case '[':
			if afterDot {
				return nil, invalid("expected field name after '.'")
			}
			if i+1 >= len(p) {
				return nil, invalid("unterminated '['")
			}
			if q := p[i+1]; q == '"' || q == '\'' {
				end := strings.IndexByte(p[i+2:], q)
				if end < 0 {
					return nil, invalid("unterminated quoted key")
				}
				closeAt := i + 2 + end + 1
				if closeAt >= len(p) || p[closeAt] != ']' {
					return nil, invalid("expected ']' after quoted key")
				}
				segs = append(segs, segment{key: p[i+2 : i+2+end]})
				i = closeAt + 1
				continue
			}
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return nil, invalid("unterminated '['")
			}
			n, err := strconv.Atoi(strings.TrimSpace(p[i+1 : i+end]))
			if err != nil || n < 0 {
				return nil, invalid("index must be a non-negative integer")
			}
			segs = append(segs, segment{index: n, isIndex: true})
			i += end + 1

		default:
			if i > 0 && !afterDot {
				return nil, invalid("expected '.' or '[' before field name")
			}
			j := i
			for j < len(p) && p[j] != '.' && p[j] != '[' {
				j++
			}
			segs = append(segs, segment{key: p[i:j]})
			afterDot = false
			i = j
		}
	}
	if afterDot {
		return nil, invalid("trailing '.'")
	}
	return segs, nil
}
