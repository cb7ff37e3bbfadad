package vars

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

const dotEnvDefaultName = "default"

// IsDotEnvPath reports whether a path should go through the dotenv parser.
// JSON environment files keep their extension; anything named .env,
// .env.<name> or <name>.env is treated as dotenv.
func IsDotEnvPath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(base, ".json") {
		return false
	}
	return base == ".env" || strings.HasPrefix(base, ".env.") || strings.HasSuffix(base, ".env")
}

func loadDotEnvEnvironment(path string) (EnvironmentSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "open env file %s", path)
	}
	defer f.Close()

	p := &dotenvParser{path: path, values: make(map[string]string)}
	if err := p.run(f); err != nil {
		return nil, err
	}
	name := dotenvName(path, p.declared)
	return EnvironmentSet{name: p.values}, nil
}

// dotenvParser accumulates assignments line by line. Interpolation only
// sees keys defined above the current line, so reference cycles cannot
// form and a typo fails on the line that made it.
type dotenvParser struct {
	path     string
	values   map[string]string
	declared string
	nameSeen bool
	line     int
}

func (p *dotenvParser) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.line++
		if err := p.consume(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "read env file %s", p.path)
	}
	return nil
}

func (p *dotenvParser) consume(raw string) error {
	line := strings.TrimSpace(raw)
	if line == "" || line[0] == '#' || line[0] == ';' {
		return nil
	}
	if len(line) > 6 && strings.EqualFold(line[:6], "export") && (line[6] == ' ' || line[6] == '\t') {
		line = strings.TrimSpace(line[6:])
	}

	key, rest, ok := strings.Cut(line, "=")
	if !ok {
		return p.errf("expected KEY=value")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return p.errf("missing key")
	}

	value, literal, err := p.parseValue(rest)
	if err != nil {
		return err
	}
	if !literal {
		if value, err = p.interpolate(value); err != nil {
			return err
		}
	}

	if strings.EqualFold(key, "environment") {
		if p.nameSeen {
			return p.errf("environment defined multiple times")
		}
		p.nameSeen = true
		p.declared = value
	}
	p.values[key] = value
	return nil
}

// parseValue decodes the right-hand side of an assignment. Single-quoted
// values are literal and skip interpolation.
func (p *dotenvParser) parseValue(raw string) (string, bool, error) {
	raw = strings.TrimLeft(raw, " \t")
	if raw == "" {
		return "", false, nil
	}
	switch raw[0] {
	case '\'':
		v, err := p.unquote(raw, '\'')
		return v, true, err
	case '"':
		v, err := p.unquote(raw, '"')
		return v, false, err
	default:
		return strings.TrimSpace(trimDotenvComment(raw)), false, nil
	}
}

func (p *dotenvParser) unquote(raw string, quote byte) (string, error) {
	var b strings.Builder
	i := 1
	for i < len(raw) {
		ch := raw[i]
		switch {
		case ch == '\\':
			if i+1 >= len(raw) {
				return "", p.errf("unfinished escape")
			}
			next := raw[i+1]
			if quote == '"' {
				next = decodeDotenvEscape(next)
			}
			b.WriteByte(next)
			i += 2
		case ch == quote:
			rest := strings.TrimSpace(raw[i+1:])
			if rest != "" && rest[0] != '#' && rest[0] != ';' {
				return "", p.errf("unexpected content after quoted value")
			}
			return b.String(), nil
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return "", p.errf("unterminated quoted value")
}

// interpolate expands $NAME and ${NAME} references. Values defined above
// win, then the process environment, so secrets can stay out of the file.
func (p *dotenvParser) interpolate(value string) (string, error) {
	if !strings.ContainsRune(value, '$') {
		return value, nil
	}
	var b strings.Builder
	for i := 0; i < len(value); {
		ch := value[i]
		if ch == '\\' && i+1 < len(value) && value[i+1] == '$' {
			b.WriteByte('$')
			i += 2
			continue
		}
		if ch != '$' || i+1 == len(value) {
			b.WriteByte(ch)
			i++
			continue
		}
		name, next, err := p.refName(value, i+1)
		if err != nil {
			return "", err
		}
		if name == "" {
			b.WriteByte(ch)
			i++
			continue
		}
		resolved, err := p.lookupRef(name)
		if err != nil {
			return "", err
		}
		b.WriteString(resolved)
		i = next
	}
	return b.String(), nil
}

func (p *dotenvParser) refName(value string, start int) (string, int, error) {
	if value[start] == '{' {
		end := strings.IndexByte(value[start+1:], '}')
		if end < 0 {
			return "", 0, p.errf("missing closing brace for ${")
		}
		end += start + 1
		name := strings.TrimSpace(value[start+1 : end])
		if name == "" {
			return "", 0, p.errf("empty variable name")
		}
		return name, end + 1, nil
	}
	end := start
	for end < len(value) && isDotenvNameByte(value[end]) {
		end++
	}
	return value[start:end], end, nil
}

func (p *dotenvParser) lookupRef(name string) (string, error) {
	if v, ok := p.values[name]; ok {
		return v, nil
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	if v, ok := os.LookupEnv(strings.ToUpper(name)); ok {
		return v, nil
	}
	return "", p.errf("variable %q is not defined", name)
}

func (p *dotenvParser) errf(format string, args ...any) error {
	return errdef.New(errdef.CodeParse, "dotenv line %d: "+format, append([]any{p.line}, args...)...)
}

// trimDotenvComment cuts an unquoted value at a # or ; that starts the
// value or follows whitespace. Embedded comment characters stay.
func trimDotenvComment(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] != '#' && v[i] != ';' {
			continue
		}
		if i == 0 || v[i-1] == ' ' || v[i-1] == '\t' {
			return v[:i]
		}
	}
	return v
}

func decodeDotenvEscape(ch byte) byte {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	case '0':
		return 0
	}
	return ch
}

func isDotenvNameByte(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	}
	return ch == '_'
}

// dotenvName picks the environment name: a declared environment= key wins,
// then the filename (.env.staging or staging.env both yield staging), then
// the default.
func dotenvName(path, declared string) string {
	if name := strings.TrimSpace(declared); name != "" {
		return name
	}
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	var name string
	switch {
	case lower == ".env":
	case strings.HasPrefix(lower, ".env."):
		name = base[len(".env."):]
	case strings.HasSuffix(lower, ".env"):
		name = base[:len(base)-len(".env")]
	default:
		name = strings.TrimSuffix(base, filepath.Ext(base))
		if strings.EqualFold(name, ".env") {
			name = ""
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return dotEnvDefaultName
	}
	return name
}
