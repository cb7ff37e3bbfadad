package curl

import (
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

// splitTokens shell-tokenizes a pasted command. Single quotes are literal,
// double quotes honor backslash escapes, $'...' decodes ANSI-C escapes, and
// a backslash before a line break joins continuation lines. Commands copied
// out of browser devtools lean on all four.
func splitTokens(input string) ([]string, error) {
	var (
		out      []string
		buf      strings.Builder
		inSingle bool
		inDouble bool
		inANSI   bool
		escape   bool
		skipLF   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}

	rs := []rune(input)
	for i := 0; i < len(rs); i++ {
		r := rs[i]

		if skipLF {
			skipLF = false
			if r == '\n' {
				continue
			}
		}

		if escape {
			escape = false
			if inANSI {
				decoded, err := ansiEscape(rs, &i)
				if err != nil {
					return nil, err
				}
				buf.WriteRune(decoded)
				continue
			}
			if r == '\n' || r == '\r' {
				if r == '\r' {
					skipLF = true
				}
				continue
			}
			buf.WriteRune(r)
			continue
		}

		if inANSI {
			switch r {
			case '\\':
				escape = true
			case '\'':
				inANSI = false
			default:
				buf.WriteRune(r)
			}
			continue
		}

		switch {
		case r == '\\':
			if inSingle {
				buf.WriteRune(r)
				continue
			}
			escape = true
		case r == '\'':
			if inDouble {
				buf.WriteRune(r)
				continue
			}
			inSingle = !inSingle
		case r == '"':
			if inSingle {
				buf.WriteRune(r)
				continue
			}
			inDouble = !inDouble
		case r == '$' && !inSingle && !inDouble && i+1 < len(rs) && rs[i+1] == '\'':
			inANSI = true
			i++
		case isWhitespace(r):
			if inSingle || inDouble {
				buf.WriteRune(r)
				continue
			}
			flush()
		default:
			buf.WriteRune(r)
		}
	}

	if escape {
		return nil, errdef.New(errdef.CodeParse, "unterminated escape sequence")
	}
	if inSingle || inDouble || inANSI {
		return nil, errdef.New(errdef.CodeParse, "unterminated quoted string")
	}
	flush()
	return out, nil
}

func ansiEscape(rs []rune, i *int) (rune, error) {
	if *i >= len(rs) {
		return 0, errdef.New(errdef.CodeParse, "unterminated escape sequence")
	}
	switch r := rs[*i]; r {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case '\\':
		return '\\', nil
	case '\'':
		return '\'', nil
	case '"':
		return '"', nil
	case 'x':
		return readHex(rs, i, 2)
	case 'u':
		return readHex(rs, i, 4)
	default:
		return r, nil
	}
}

func readHex(rs []rune, i *int, n int) (rune, error) {
	if *i+n >= len(rs) {
		return 0, errdef.New(errdef.CodeParse, "invalid hex escape")
	}
	val := 0
	for j := 0; j < n; j++ {
		d, ok := hexVal(rs[*i+1+j])
		if !ok {
			return 0, errdef.New(errdef.CodeParse, "invalid hex escape")
		}
		val = val*16 + d
	}
	*i += n
	return rune(val), nil
}

func hexVal(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10, true
	default:
		return 0, false
	}
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
