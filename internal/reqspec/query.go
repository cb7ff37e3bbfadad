package reqspec

import (
	"net/url"
	"strings"
)

// SplitQuery parses a raw query string into ordered pairs. Operators paste
// URLs with unencoded ampersands and spaces inside quoted values, so the
// split only honors '&' outside quotes and each side percent-decodes with a
// raw fallback instead of failing the whole string.
func SplitQuery(rawQuery string) PairList {
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	if strings.TrimSpace(rawQuery) == "" {
		return nil
	}
	var out PairList
	for _, segment := range splitOutsideQuotes(rawQuery, '&') {
		if segment == "" {
			continue
		}
		key, value := segment, ""
		if idx := strings.IndexByte(segment, '='); idx >= 0 {
			key, value = segment[:idx], segment[idx+1:]
		}
		out = append(out, Pair{Key: decodeQueryPart(key), Value: decodeQueryPart(value)})
	}
	return out
}

func splitOutsideQuotes(raw string, sep byte) []string {
	var (
		parts []string
		cur   strings.Builder
		quote byte
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			cur.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func decodeQueryPart(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

// AppendQuery merges params into rawURL's query string. Keys the URL
// already embeds are skipped (embedded params win); appended params keep
// their order, duplicates included.
func AppendQuery(rawURL string, params PairList) string {
	if len(params) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	embedded := make(map[string]struct{})
	for _, pair := range SplitQuery(u.RawQuery) {
		embedded[pair.Key] = struct{}{}
	}
	var b strings.Builder
	b.WriteString(u.RawQuery)
	for _, pair := range params {
		if _, ok := embedded[pair.Key]; ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pair.Value))
	}
	u.RawQuery = b.String()
	return u.String()
}
