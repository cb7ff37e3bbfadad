package curl

import (
	"strconv"
	"strings"
	"time"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

type optKind int

const (
	optNone optKind = iota
	optVal
)

type optFn func(*segState, string) error

type optDef struct {
	key  string
	kind optKind
	fn   optFn
}

var defs = map[string]*optDef{
	"request":        {key: "request", kind: optVal, fn: optRequest},
	"header":         {key: "header", kind: optVal, fn: optHeader},
	"user":           {key: "user", kind: optVal, fn: optUser},
	"user-agent":     {key: "user-agent", kind: optVal, fn: optHeaderKey(headerUserAgent)},
	"referer":        {key: "referer", kind: optVal, fn: optHeaderKey(headerReferer)},
	"cookie":         {key: "cookie", kind: optVal, fn: optHeaderKey(headerCookie)},
	"head":           {key: "head", kind: optNone, fn: optHead},
	"compressed":     {key: "compressed", kind: optNone, fn: optCompressed},
	"url":            {key: "url", kind: optVal, fn: optURL},
	"json":           {key: "json", kind: optVal, fn: optJSON},
	"data":           {key: "data", kind: optVal, fn: optData},
	"data-raw":       {key: "data-raw", kind: optVal, fn: optDataRaw},
	"data-binary":    {key: "data-binary", kind: optVal, fn: optDataBinary},
	"data-urlencode": {key: "data-urlencode", kind: optVal, fn: optDataURLEncode},
	"form":           {key: "form", kind: optVal, fn: optForm},
	"form-string":    {key: "form-string", kind: optVal, fn: optFormString},
	"upload-file":    {key: "upload-file", kind: optVal, fn: optUpload},
	"get":            {key: "get", kind: optNone, fn: optGet},
	"insecure":       {key: "insecure", kind: optNone, fn: optInsecure},
	"location":       {key: "location", kind: optNone, fn: optLocation},
	"max-time":       {key: "max-time", kind: optVal, fn: optMaxTime},
	"proxy":          {key: "proxy", kind: optVal, fn: optProxy},
	"connect-timeout": {
		key:  "connect-timeout",
		kind: optVal,
		fn:   optWarnDur("connect-timeout"),
	},
	"max-redirs":     {key: "max-redirs", kind: optVal, fn: optWarnInt("max-redirs")},
	"retry":          {key: "retry", kind: optVal, fn: optWarnInt("retry")},
	"retry-delay":    {key: "retry-delay", kind: optVal, fn: optWarnDur("retry-delay")},
	"retry-max-time": {key: "retry-max-time", kind: optVal, fn: optWarnDur("retry-max-time")},
	"retry-connrefused": {
		key:  "retry-connrefused",
		kind: optNone,
		fn:   optWarn("--retry-connrefused"),
	},
	"cacert":            {key: "cacert", kind: optVal, fn: optWarnVal("--cacert")},
	"cert":              {key: "cert", kind: optVal, fn: optWarnVal("--cert")},
	"key":               {key: "key", kind: optVal, fn: optWarnVal("--key")},
	"silent":            {key: "silent", kind: optNone, fn: optWarn("--silent")},
	"silent-short":      {key: "silent-short", kind: optNone, fn: optWarn("-s")},
	"show-error":        {key: "show-error", kind: optNone, fn: optWarn("--show-error")},
	"show-error-short":  {key: "show-error-short", kind: optNone, fn: optWarn("-S")},
	"verbose":           {key: "verbose", kind: optNone, fn: optWarn("--verbose")},
	"verbose-short":     {key: "verbose-short", kind: optNone, fn: optWarn("-v")},
	"include":           {key: "include", kind: optNone, fn: optWarn("--include")},
	"include-short":     {key: "include-short", kind: optNone, fn: optWarn("-i")},
	"output":            {key: "output", kind: optVal, fn: optWarnVal("--output")},
	"output-short":      {key: "output-short", kind: optVal, fn: optWarnVal("-o")},
	"remote-name":       {key: "remote-name", kind: optNone, fn: optWarn("--remote-name")},
	"remote-name-short": {key: "remote-name-short", kind: optNone, fn: optWarn("-O")},
	"dump-header":       {key: "dump-header", kind: optVal, fn: optWarnVal("--dump-header")},
	"dump-header-short": {key: "dump-header-short", kind: optVal, fn: optWarnVal("-D")},
	"http1.1":           {key: "http1.1", kind: optNone, fn: optWarn("--http1.1")},
	"http2":             {key: "http2", kind: optNone, fn: optWarn("--http2")},
	"resolve":           {key: "resolve", kind: optVal, fn: optWarnVal("--resolve")},
	"connect-to":        {key: "connect-to", kind: optVal, fn: optWarnVal("--connect-to")},
	"interface":         {key: "interface", kind: optVal, fn: optWarnVal("--interface")},
}

var longDefs = map[string]*optDef{
	"request":           defs["request"],
	"header":            defs["header"],
	"user":              defs["user"],
	"user-agent":        defs["user-agent"],
	"referer":           defs["referer"],
	"cookie":            defs["cookie"],
	"head":              defs["head"],
	"compressed":        defs["compressed"],
	"url":               defs["url"],
	"json":              defs["json"],
	"data":              defs["data"],
	"data-ascii":        defs["data"],
	"data-raw":          defs["data-raw"],
	"data-binary":       defs["data-binary"],
	"data-urlencode":    defs["data-urlencode"],
	"form":              defs["form"],
	"form-string":       defs["form-string"],
	"upload-file":       defs["upload-file"],
	"get":               defs["get"],
	"insecure":          defs["insecure"],
	"location":          defs["location"],
	"max-time":          defs["max-time"],
	"proxy":             defs["proxy"],
	"connect-timeout":   defs["connect-timeout"],
	"max-redirs":        defs["max-redirs"],
	"retry":             defs["retry"],
	"retry-delay":       defs["retry-delay"],
	"retry-max-time":    defs["retry-max-time"],
	"retry-connrefused": defs["retry-connrefused"],
	"cacert":            defs["cacert"],
	"cert":              defs["cert"],
	"key":               defs["key"],
	"silent":            defs["silent"],
	"show-error":        defs["show-error"],
	"verbose":           defs["verbose"],
	"include":           defs["include"],
	"output":            defs["output"],
	"remote-name":       defs["remote-name"],
	"dump-header":       defs["dump-header"],
	"http1.1":           defs["http1.1"],
	"http2":             defs["http2"],
	"resolve":           defs["resolve"],
	"connect-to":        defs["connect-to"],
	"interface":         defs["interface"],
}

var shortDefs = map[rune]*optDef{
	'X': defs["request"],
	'H': defs["header"],
	'u': defs["user"],
	'A': defs["user-agent"],
	'e': defs["referer"],
	'b': defs["cookie"],
	'I': defs["head"],
	'd': defs["data"],
	'F': defs["form"],
	'G': defs["get"],
	'T': defs["upload-file"],
	'k': defs["insecure"],
	'x': defs["proxy"],
	'L': defs["location"],
	'm': defs["max-time"],
	's': defs["silent-short"],
	'S': defs["show-error-short"],
	'v': defs["verbose-short"],
	'i': defs["include-short"],
	'o': defs["output-short"],
	'O': defs["remote-name-short"],
	'D': defs["dump-header-short"],
}

func optRequest(st *segState, val string) error {
	st.method = strings.ToUpper(strings.TrimSpace(val))
	st.explicit = true
	return nil
}

func optHeader(st *segState, val string) error {
	name, value := splitHeader(val)
	if name != "" {
		st.headers.Add(name, value)
	}
	return nil
}

func optUser(st *segState, val string) error {
	st.user = val
	st.userSet = true
	return nil
}

func optHeaderKey(key string) optFn {
	return func(st *segState, val string) error {
		if strings.TrimSpace(val) == "" {
			return nil
		}
		st.headers.SetFold(key, val)
		return nil
	}
}

func optHead(st *segState, _ string) error {
	st.method = "HEAD"
	st.explicit = true
	return nil
}

func optCompressed(st *segState, _ string) error {
	st.compressed = true
	return nil
}

func optURL(st *segState, val string) error {
	st.url = val
	return nil
}

func optJSON(st *segState, val string) error {
	if err := st.body.addRaw(val); err != nil {
		return err
	}
	if !st.headers.HasFold(headerContentType) {
		st.headers.Add(headerContentType, mimeJSON)
	}
	if !st.headers.HasFold(headerAccept) {
		st.headers.Add(headerAccept, mimeJSON)
	}
	return nil
}

func optData(st *segState, val string) error {
	return st.body.addData(val, true)
}

func optDataRaw(st *segState, val string) error {
	return st.body.addRaw(val)
}

func optDataBinary(st *segState, val string) error {
	return st.body.addBinary(val)
}

func optDataURLEncode(st *segState, val string) error {
	return st.body.addURLEncoded(val)
}

func optForm(st *segState, val string) error {
	return st.body.addFormPart(val, false)
}

func optFormString(st *segState, val string) error {
	return st.body.addFormPart(val, true)
}

func optUpload(st *segState, val string) error {
	if !st.explicit {
		st.method = "PUT"
		st.explicit = true
	}
	return st.body.addFile(val)
}

func optGet(st *segState, _ string) error {
	st.toQuery = true
	st.method = "GET"
	st.explicit = true
	return nil
}

func optInsecure(st *segState, _ string) error {
	st.opts.Insecure = true
	return nil
}

func optLocation(st *segState, _ string) error {
	st.opts.FollowRedirects = true
	return nil
}

func optMaxTime(st *segState, val string) error {
	d, err := parseCurlDuration(val)
	if err != nil {
		return err
	}
	st.opts.Timeout = d
	return nil
}

// The relay chain decides how a request leaves the process; a pasted --proxy
// only records that the operator had one.
func optProxy(st *segState, val string) error {
	if strings.TrimSpace(val) == "" {
		return errdef.New(errdef.CodeParse, "empty proxy")
	}
	st.warn.Flag("--proxy")
	return nil
}

func optWarn(flag string) optFn {
	return func(st *segState, _ string) error {
		st.warn.Flag(flag)
		return nil
	}
}

func optWarnVal(flag string) optFn {
	return func(st *segState, val string) error {
		if strings.TrimSpace(val) == "" {
			return errdef.New(errdef.CodeParse, "empty %s", strings.TrimLeft(flag, "-"))
		}
		st.warn.Flag(flag)
		return nil
	}
}

// Validate ignored flags so malformed values still surface during import.
func optWarnDur(name string) optFn {
	return func(st *segState, val string) error {
		if _, err := parseCurlDuration(val); err != nil {
			return err
		}
		st.warn.Flag("--" + name)
		return nil
	}
}

func optWarnInt(name string) optFn {
	return func(st *segState, val string) error {
		raw := strings.TrimSpace(val)
		if raw == "" {
			return errdef.New(errdef.CodeParse, "empty %s", name)
		}
		if _, err := strconv.Atoi(raw); err != nil {
			return errdef.New(errdef.CodeParse, "invalid %s %q", name, raw)
		}
		st.warn.Flag("--" + name)
		return nil
	}
}

// parseCurlDuration accepts curl's bare-seconds form (including fractions)
// and Go duration strings.
func parseCurlDuration(val string) (time.Duration, error) {
	raw := strings.TrimSpace(val)
	if raw == "" {
		return 0, errdef.New(errdef.CodeParse, "empty timeout")
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errdef.Wrap(errdef.CodeParse, err, "invalid duration %q", raw)
	}
	return d, nil
}
