package curl

import (
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

func parseCommand(tokens []string) (*command, error) {
	idx, ok := findCurlIndex(tokens)
	if !ok {
		return nil, errdef.New(errdef.CodeParse, "not a curl command")
	}

	cmd := &command{}
	seg := segment{}
	posOnly := false

	for i := idx + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t == "" {
			continue
		}

		if !posOnly {
			if t == "--" {
				posOnly = true
				continue
			}
			if t == "--next" {
				addSegment(cmd, seg)
				seg = segment{}
				posOnly = false
				continue
			}
			if strings.HasPrefix(t, "--") {
				it, ok, err := parseLong(t, tokens, &i)
				if err != nil {
					return nil, err
				}
				if ok {
					seg.items = append(seg.items, it)
				} else {
					seg.unknown = append(seg.unknown, t)
				}
				continue
			}
			if strings.HasPrefix(t, "-") && t != "-" {
				items, unknown, ok, err := parseShort(t, tokens, &i)
				if err != nil {
					return nil, err
				}
				if ok {
					seg.items = append(seg.items, items...)
				}
				if len(unknown) > 0 {
					seg.unknown = append(seg.unknown, unknown...)
				}
				if ok || len(unknown) > 0 {
					continue
				}
			}
		}

		seg.items = append(seg.items, item{pos: t})
	}

	addSegment(cmd, seg)
	return cmd, nil
}

func addSegment(cmd *command, seg segment) {
	if len(seg.items) == 0 && len(seg.unknown) == 0 {
		return
	}
	cmd.segments = append(cmd.segments, seg)
}

func parseLong(t string, tokens []string, i *int) (item, bool, error) {
	name, val, hasVal := splitLong(t)
	if name == "" {
		return item{}, false, nil
	}

	def := longDefs[name]
	if def == nil {
		return item{}, false, nil
	}

	if def.kind == optVal && !hasVal {
		next, err := consumeNext(tokens, i, "--"+name)
		if err != nil {
			return item{}, false, err
		}
		val = next
	}

	return optItem(def.key, val), true, nil
}

func splitLong(t string) (string, string, bool) {
	if !strings.HasPrefix(t, "--") || len(t) < 3 {
		return "", "", false
	}

	raw := t[2:]
	if raw == "" {
		return "", "", false
	}

	if idx := strings.Index(raw, "="); idx >= 0 {
		return raw[:idx], raw[idx+1:], true
	}

	return raw, "", false
}

// parseShort handles clustered short flags: value-taking flags consume the
// rest of the cluster or the next token, unknown letters become warnings.
func parseShort(t string, tokens []string, i *int) ([]item, []string, bool, error) {
	if len(t) < 2 || !strings.HasPrefix(t, "-") {
		return nil, nil, false, nil
	}
	raw := t[1:]
	var items []item
	var unknown []string
	ok := false

	for j := 0; j < len(raw); j++ {
		ch := rune(raw[j])
		def := shortDefs[ch]
		if def == nil {
			unknown = append(unknown, "-"+string(ch))
			continue
		}

		ok = true
		if def.kind == optNone {
			items = append(items, optItem(def.key, ""))
			continue
		}

		val := ""
		if j+1 < len(raw) {
			val = raw[j+1:]
		} else {
			next, err := consumeNext(tokens, i, "-"+string(ch))
			if err != nil {
				return nil, nil, false, err
			}
			val = next
		}
		items = append(items, optItem(def.key, val))
		break
	}
	return items, unknown, ok, nil
}

func optItem(key, val string) item {
	return item{opt: option{key: key, val: val}, isOpt: true}
}

func consumeNext(tokens []string, idx *int, flag string) (string, error) {
	*idx++
	if *idx >= len(tokens) {
		return "", errdef.New(errdef.CodeParse, "missing argument for %s", flag)
	}
	return tokens[*idx], nil
}

// findCurlIndex locates the curl token, stepping over prompt prefixes and
// shell wrappers (sudo, env assignments, time) that ride along when commands
// are copied out of a terminal.
func findCurlIndex(tokens []string) (int, bool) {
	for i, tok := range tokens {
		trimmed := strings.TrimSpace(stripPromptPrefix(tok))
		if trimmed == "" {
			continue
		}
		if strings.EqualFold(trimmed, cmdCurl) {
			return i, true
		}
		if !isWrapperToken(trimmed) {
			return 0, false
		}
	}
	return 0, false
}

func isWrapperToken(tok string) bool {
	switch strings.ToLower(tok) {
	case cmdSudo, cmdEnv, cmdCommand, cmdTime, cmdNoGlob:
		return true
	}
	return strings.Contains(tok, "=")
}

func stripPromptPrefix(token string) string {
	trimmed := strings.TrimSpace(token)
	for _, prefix := range promptPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			trimmed = strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return trimmed
}
