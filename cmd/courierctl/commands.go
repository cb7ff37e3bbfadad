package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chetanft/courier-integration-sub002/internal/auth"
	"github.com/chetanft/courier-integration-sub002/internal/courier"
	"github.com/chetanft/courier-integration-sub002/internal/curl"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/script"
)

// ParseCmd parses curl text and prints the normalized request, redacted.
// Nothing is sent.
type ParseCmd struct {
	File string   `kong:"short='f',help='Read the curl command from a file. Use - for stdin.'"`
	Curl []string `kong:"arg,optional,name='curl',help='The curl command, pasted as-is.'"`
}

func (c *ParseCmd) Run(a *app) error {
	text, err := readRequestText(c.Curl, c.File, a.stdin)
	if err != nil {
		return err
	}
	d, warnings, err := curl.Parse(text)
	if err != nil {
		return err
	}
	printWarnings(a.errOut, warnings)

	normalized, err := reqspec.Normalize(d)
	if err != nil {
		return err
	}
	return printDescriptor(a.out, normalized)
}

// RunCmd executes one request through the full pipeline and prints the
// classified outcome. A run that ends in a failure outcome exits non-zero.
type RunCmd struct {
	File       string   `kong:"short='f',help='Read the curl command from a file. Use - for stdin.'"`
	Descriptor string   `kong:"short='d',help='Read a request descriptor (JSON) instead of curl text. Use - for stdin.'"`
	Courier    string   `kong:"help='Courier id, used for stored credentials and the run journal.'"`
	Intent     string   `kong:"help='Request intent: fetch, token, or generic.'"`
	UseStored  bool     `kong:"name='use-stored',help='Fill credential placeholders from the store for the courier.'"`
	Paginate   bool     `kong:"help='Follow pagination references and merge the pages.'"`
	Curl       []string `kong:"arg,optional,name='curl',help='The curl command, pasted as-is.'"`
}

func (c *RunCmd) Run(a *app) error {
	d, warnings, err := a.loadInput(c.Curl, c.File, c.Descriptor)
	if err != nil {
		return err
	}
	printWarnings(a.errOut, warnings)
	if err := stampDescriptor(d, c.Courier, c.Intent, c.UseStored, c.Paginate); err != nil {
		return err
	}

	svc, cleanup, err := a.buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	out := svc.Run(a.ctx, d)
	if err := printOutcome(a.out, out, a.globals.JSON); err != nil {
		return err
	}
	if !out.OK() {
		return fmt.Errorf("run finished with %s", out.Kind)
	}
	return nil
}

// BatchCmd runs one request across several couriers, each with its own
// stored credentials. Couriers come from positional ids, a --targets file,
// or both; the shared request comes from --file or --descriptor. A targets
// entry may carry its own descriptor, which then wins over the shared one.
type BatchCmd struct {
	File       string   `kong:"short='f',help='Read the curl command from a file. Use - for stdin.'"`
	Descriptor string   `kong:"short='d',help='Read a request descriptor (JSON) instead of curl text. Use - for stdin.'"`
	Targets    string   `kong:"short='t',help='JSON targets file: an array of {courier, descriptor?} entries.'"`
	Intent     string   `kong:"help='Request intent: fetch, token, or generic.'"`
	Paginate   bool     `kong:"help='Follow pagination references and merge the pages.'"`
	Size       int      `kong:"help='Concurrent requests per wave (overrides settings).'"`
	Pause      float64  `kong:"default='-1',help='Seconds between waves (overrides settings).'"`
	Couriers   []string `kong:"arg,optional,name='courier',help='Courier ids to run against.'"`
}

func (c *BatchCmd) Run(a *app) error {
	targets, err := c.collectTargets(a)
	if err != nil {
		return err
	}

	svc, cleanup, err := a.buildService()
	if err != nil {
		return err
	}
	defer cleanup()
	if c.Size > 0 {
		svc.SetBatchSize(c.Size)
	}
	if c.Pause >= 0 {
		svc.SetBatchPause(secondsDuration(c.Pause))
	}

	results := svc.FetchBatch(a.ctx, targets)
	if err := printBatchResults(a.out, results, a.globals.JSON); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.Outcome.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d couriers failed", failed, len(results))
	}
	return nil
}

// collectTargets builds the batch target list from the targets file and the
// positional courier ids. Every target without its own descriptor needs the
// shared request.
func (c *BatchCmd) collectTargets(a *app) ([]courier.Target, error) {
	var entries []targetEntry
	if c.Targets != "" {
		loaded, err := loadTargets(c.Targets, a.stdin)
		if err != nil {
			return nil, err
		}
		entries = loaded
	}
	for _, id := range c.Couriers {
		entries = append(entries, targetEntry{Courier: id})
	}
	if len(entries) == 0 {
		return nil, errors.New("no couriers given (pass ids or --targets)")
	}

	var base *reqspec.Descriptor
	if c.File != "" || c.Descriptor != "" {
		d, warnings, err := a.loadInput(nil, c.File, c.Descriptor)
		if err != nil {
			return nil, err
		}
		printWarnings(a.errOut, warnings)
		base = d
	}

	targets := make([]courier.Target, 0, len(entries))
	for _, entry := range entries {
		if entry.Courier == "" {
			return nil, errors.New("targets entry missing courier id")
		}
		d := entry.Descriptor
		if d == nil {
			if base == nil {
				return nil, fmt.Errorf(
					"courier %s has no descriptor; provide one in the targets file or via --file/--descriptor",
					entry.Courier,
				)
			}
			d = base.Clone()
		}
		d.CourierID = entry.Courier
		d.UseStored = true
		if err := stampDescriptor(d, "", c.Intent, true, c.Paginate); err != nil {
			return nil, err
		}
		targets = append(targets, courier.Target{CourierID: entry.Courier, Descriptor: d})
	}
	return targets, nil
}

// CredsCmd manages the per-courier credential store.
type CredsCmd struct {
	Set CredsSetCmd `kong:"cmd,help='Store credentials for a courier.'"`
	Get CredsGetCmd `kong:"cmd,help='Show which credential fields a courier has stored.'"`
	Rm  CredsRmCmd  `kong:"cmd,help='Delete stored credentials for a courier.'"`
	Ls  CredsLsCmd  `kong:"cmd,help='List couriers with stored credentials.'"`
}

type CredsSetCmd struct {
	Courier  string `kong:"arg,name='courier',help='Courier id.'"`
	Username string `kong:"help='Basic auth username.',env='COURIER_USERNAME'"`
	Password string `kong:"help='Basic auth password.',env='COURIER_PASSWORD'"`
	Token    string `kong:"help='Bearer or JWT token.',env='COURIER_TOKEN'"`
	APIKey   string `kong:"name='api-key',help='API key.',env='COURIER_API_KEY'"`
}

func (c *CredsSetCmd) Run(a *app) error {
	creds := auth.Credentials{
		Username: c.Username,
		Password: c.Password,
		Token:    c.Token,
		APIKey:   c.APIKey,
	}
	if creds.IsZero() {
		return errors.New("nothing to store: pass at least one of --username/--password, --token, or --api-key")
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetCredentials(a.ctx, c.Courier, creds); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "stored credentials for %s\n", c.Courier)
	return nil
}

type CredsGetCmd struct {
	Courier string `kong:"arg,name='courier',help='Courier id.'"`
}

func (c *CredsGetCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	creds, ok, err := st.Lookup(a.ctx, c.Courier)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no credentials stored for %q", c.Courier)
	}
	return printCredentials(a.out, c.Courier, creds, a.globals.JSON)
}

type CredsRmCmd struct {
	Courier string `kong:"arg,name='courier',help='Courier id.'"`
}

func (c *CredsRmCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.DeleteCredentials(a.ctx, c.Courier)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no credentials stored for %q", c.Courier)
	}
	fmt.Fprintf(a.out, "removed credentials for %s\n", c.Courier)
	return nil
}

type CredsLsCmd struct{}

func (c *CredsLsCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.Couriers(a.ctx)
	if err != nil {
		return err
	}
	return printCourierList(a.out, ids, a.globals.JSON)
}

// RenderCmd prints the canonical curl command for a request. Secrets stay
// in the clear: the output exists to be replayed.
type RenderCmd struct {
	File       string   `kong:"short='f',help='Read the curl command from a file. Use - for stdin.'"`
	Descriptor string   `kong:"short='d',help='Read a request descriptor (JSON) instead of curl text. Use - for stdin.'"`
	Curl       []string `kong:"arg,optional,name='curl',help='The curl command, pasted as-is.'"`
}

func (c *RenderCmd) Run(a *app) error {
	d, warnings, err := a.loadInput(c.Curl, c.File, c.Descriptor)
	if err != nil {
		return err
	}
	printWarnings(a.errOut, warnings)

	normalized, err := reqspec.Normalize(d)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, curl.Render(normalized))
	return nil
}

// ScriptCmd turns a request into a Node integration snippet with every
// credential swapped for an injection placeholder.
type ScriptCmd struct {
	File       string   `kong:"short='f',help='Read the curl command from a file. Use - for stdin.'"`
	Descriptor string   `kong:"short='d',help='Read a request descriptor (JSON) instead of curl text. Use - for stdin.'"`
	Out        string   `kong:"short='o',help='Write the snippet to a file instead of stdout.'"`
	Curl       []string `kong:"arg,optional,name='curl',help='The curl command, pasted as-is.'"`
}

func (c *ScriptCmd) Run(a *app) error {
	d, warnings, err := a.loadInput(c.Curl, c.File, c.Descriptor)
	if err != nil {
		return err
	}
	printWarnings(a.errOut, warnings)

	normalized, err := reqspec.Normalize(d)
	if err != nil {
		return err
	}
	snippet, err := script.Generate(normalized)
	if err != nil {
		return err
	}

	if c.Out != "" {
		if err := os.WriteFile(c.Out, []byte(snippet), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(a.errOut, "wrote %s\n", c.Out)
		return nil
	}
	fmt.Fprint(a.out, snippet)
	return nil
}

// RunsCmd lists journaled runs, newest first.
type RunsCmd struct {
	Limit int `kong:"default='20',help='Maximum rows to show.'"`
}

func (c *RunsCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(a.ctx, c.Limit)
	if err != nil {
		return err
	}
	return printRuns(a.out, runs, a.globals.JSON)
}

type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.out, "courierctl %s\n", version)
	fmt.Fprintf(a.out, "  commit: %s\n", commit)
	fmt.Fprintf(a.out, "  built:  %s\n", date)
	if sum, err := executableChecksum(); err == nil {
		fmt.Fprintf(a.out, "  sha256: %s\n", sum)
	} else {
		fmt.Fprintf(a.out, "  sha256: unavailable (%v)\n", err)
	}
	return nil
}

// stampDescriptor applies the per-run flags onto a loaded descriptor.
func stampDescriptor(d *reqspec.Descriptor, courierID, intent string, useStored, paginate bool) error {
	if courierID != "" {
		d.CourierID = courierID
	}
	if intent != "" {
		parsed, err := parseIntent(intent)
		if err != nil {
			return err
		}
		d.Intent = parsed
	}
	if useStored {
		d.UseStored = true
	}
	if paginate {
		d.Paginate = true
	}
	return nil
}

func parseIntent(s string) (reqspec.Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fetch", string(reqspec.IntentFetchData):
		return reqspec.IntentFetchData, nil
	case "token", "mint", string(reqspec.IntentGenerateToken):
		return reqspec.IntentGenerateToken, nil
	case "generic", string(reqspec.IntentGeneric):
		return reqspec.IntentGeneric, nil
	}
	return "", fmt.Errorf(
		"unknown intent %q (use fetch, token, or generic)", s,
	)
}

func executableChecksum() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", err
	}
	f, err := os.Open(exe)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
