package curl

// command is the token-level shape of a pasted invocation before any
// descriptor semantics apply. --next starts a new segment; each segment
// becomes its own descriptor.
type command struct {
	segments []segment
}

type segment struct {
	items   []item
	unknown []string
}

type item struct {
	opt   option
	pos   string
	isOpt bool
}

type option struct {
	key string
	val string
}
