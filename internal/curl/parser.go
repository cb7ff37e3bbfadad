// Package curl turns pasted curl commands into request descriptors. The
// parser accepts what operators actually paste: prompt prefixes, shell
// wrappers, line continuations, duplicated flags, and flags this console
// cannot honor (those come back as warnings, never errors).
package curl

import (
	"github.com/chetanft/courier-integration-sub002/internal/errdef"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// Parsed couples a descriptor with the warnings its command produced.
type Parsed struct {
	Descriptor *reqspec.Descriptor
	Warnings   []string
}

// Parse converts a single curl command into a descriptor. Commands chained
// with --next contribute only their first segment here; ParseAll returns
// every segment.
func Parse(text string) (*reqspec.Descriptor, []string, error) {
	all, err := ParseAll(text)
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, errdef.New(errdef.CodeParse, "curl command missing URL")
	}
	return all[0].Descriptor, all[0].Warnings, nil
}

func ParseAll(text string) ([]Parsed, error) {
	tokens, err := splitTokens(text)
	if err != nil {
		return nil, err
	}
	cmd, err := parseCommand(tokens)
	if err != nil {
		return nil, err
	}
	out := make([]Parsed, 0, len(cmd.segments))
	for _, seg := range cmd.segments {
		d, warnings, err := buildSegment(seg)
		if err != nil {
			return nil, err
		}
		out = append(out, Parsed{Descriptor: d, Warnings: warnings})
	}
	return out, nil
}
