package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/curl"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// loadInput resolves the three request sources a command accepts: inline
// curl arguments, curl text from --file, or descriptor JSON from
// --descriptor. Warnings only arise on the curl paths.
func (a *app) loadInput(args []string, file, descriptor string) (*reqspec.Descriptor, []string, error) {
	if descriptor != "" {
		if file != "" || len(args) > 0 {
			return nil, nil, errors.New("--descriptor cannot be combined with curl input")
		}
		d, err := loadDescriptorJSON(descriptor, a.stdin)
		return d, nil, err
	}

	text, err := readRequestText(args, file, a.stdin)
	if err != nil {
		return nil, nil, err
	}
	return curl.Parse(text)
}

// readRequestText returns curl text from --file ("-" reads stdin) or from
// the inline arguments. Inline arguments get re-quoted before parsing: the
// shell already stripped the user's quotes, and header values with spaces
// must survive as one token.
func readRequestText(args []string, file string, stdin io.Reader) (string, error) {
	if file != "" {
		if len(args) > 0 {
			return "", errors.New("pass the curl command inline or via --file, not both")
		}
		data, err := readPath(file, stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	text := strings.TrimSpace(shellJoin(args))
	if text == "" {
		return "", errors.New("no curl command given (pass it inline, or use --file)")
	}
	return text, nil
}

func loadDescriptorJSON(path string, stdin io.Reader) (*reqspec.Descriptor, error) {
	data, err := readPath(path, stdin)
	if err != nil {
		return nil, err
	}
	var d reqspec.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", pathLabel(path), err)
	}
	return &d, nil
}

// targetEntry is one row of a batch targets file.
type targetEntry struct {
	Courier    string              `json:"courier"`
	Descriptor *reqspec.Descriptor `json:"descriptor,omitempty"`
}

func loadTargets(path string, stdin io.Reader) ([]targetEntry, error) {
	data, err := readPath(path, stdin)
	if err != nil {
		return nil, err
	}
	var entries []targetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse targets %s: %w", pathLabel(path), err)
	}
	return entries, nil
}

func readPath(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func pathLabel(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}

// shellJoin rebuilds a shell-safe command line from already-split
// arguments.
func shellJoin(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = shellQuote(arg)
	}
	return strings.Join(parts, " ")
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\r\"'\\$") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
