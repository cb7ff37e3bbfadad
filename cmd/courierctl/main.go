package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/alecthomas/kong"

	"github.com/chetanft/courier-integration-sub002/internal/auth"
	"github.com/chetanft/courier-integration-sub002/internal/config"
	"github.com/chetanft/courier-integration-sub002/internal/courier"
	"github.com/chetanft/courier-integration-sub002/internal/extract"
	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
	"github.com/chetanft/courier-integration-sub002/internal/store"
	"github.com/chetanft/courier-integration-sub002/internal/telemetry"
	"github.com/chetanft/courier-integration-sub002/internal/transport"
	"github.com/chetanft/courier-integration-sub002/internal/vars"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals are the flags shared by every subcommand.
type Globals struct {
	Config         string  `kong:"short='c',help='Settings file (TOML or JSON).',env='COURIER_CONFIG'"`
	EnvFile        string  `kong:"name='env-file',help='Environment file (.env or JSON) supplying {{placeholder}} values.',env='COURIER_ENV_FILE'"`
	Env            string  `kong:"help='Environment name to select from the environment file.',env='COURIER_ENV'"`
	Store          string  `kong:"help='Path to the credential and run-journal store.',env='COURIER_STORE'"`
	RelayPrimary   string  `kong:"name='relay-primary',help='Primary relay endpoint override.',env='COURIER_RELAY_PRIMARY'"`
	RelaySecondary string  `kong:"name='relay-secondary',help='Secondary relay endpoint override.',env='COURIER_RELAY_SECONDARY'"`
	Timeout        float64 `kong:"help='Request timeout in seconds.'"`
	Insecure       bool    `kong:"short='k',help='Skip TLS certificate verification.'"`
	Follow         bool    `kong:"short='L',help='Follow redirects.'"`
	LogLevel       string  `kong:"name='log-level',help='Log level: debug, info, warn, or error.',env='COURIER_LOG_LEVEL'"`
	JSON           bool    `kong:"help='Print results as JSON instead of a summary.'"`
}

type CLI struct {
	Globals Globals `kong:"embed"`

	Parse   ParseCmd   `kong:"cmd,help='Parse a curl command and print the request it describes, without sending anything.'"`
	Run     RunCmd     `kong:"cmd,help='Execute a request end to end and print the classified outcome.'"`
	Batch   BatchCmd   `kong:"cmd,help='Run one request across several couriers using their stored credentials.'"`
	Creds   CredsCmd   `kong:"cmd,help='Manage stored courier credentials.'"`
	Render  RenderCmd  `kong:"cmd,help='Print the canonical curl command for a request.'"`
	Script  ScriptCmd  `kong:"cmd,help='Generate a Node integration snippet with placeholder credentials.'"`
	Runs    RunsCmd    `kong:"cmd,help='List journaled runs, newest first.'"`
	Version VersionCmd `kong:"cmd,help='Print version information.'"`
}

func main() {
	var cli CLI
	parsed := kong.Parse(&cli,
		kong.Name("courierctl"),
		kong.Description(heredoc.Doc(`
			Courier integration console.

			Paste a courier curl command, run it through the direct and relay
			transports, and get back one classified outcome with every
			credential redacted. Stored credentials and the run journal live
			in a local owner-only sqlite file.

			Examples:
			  courierctl run -- curl https://api.dhl.example/v1/shipments -H 'X-API-Key: s3cret'
			  courierctl run --courier dhl --use-stored --paginate -f request.curl
			  courierctl batch --descriptor track.json dhl fedex bluedart
			  courierctl script -f request.curl > integration.js
		`)),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		settings config.Settings
		err      error
	)
	if cli.Globals.Config != "" {
		settings, _, err = config.LoadSettingsFrom(cli.Globals.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "courierctl: %v\n", err)
			os.Exit(1)
		}
	} else {
		settings, _, err = config.LoadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "courierctl: settings: %v (continuing with defaults)\n", err)
			settings = config.DefaultSettings()
		}
	}
	settings = applyGlobals(settings, &cli.Globals)

	a := &app{
		ctx:      ctx,
		globals:  &cli.Globals,
		settings: settings,
		logger:   newLogger(settings.Log),
		out:      os.Stdout,
		errOut:   os.Stderr,
		stdin:    os.Stdin,
	}

	if err := parsed.Run(a); err != nil {
		fmt.Fprintf(os.Stderr, "courierctl: %v\n", err)
		os.Exit(1)
	}
}

// applyGlobals folds flag overrides into the loaded settings and re-clamps
// the result so flag values obey the same ranges as file values.
func applyGlobals(settings config.Settings, g *Globals) config.Settings {
	if g.RelayPrimary != "" {
		settings.Relays.Primary.URL = g.RelayPrimary
	}
	if g.RelaySecondary != "" {
		settings.Relays.Secondary.URL = g.RelaySecondary
	}
	if g.Timeout > 0 {
		settings.Limits.TimeoutSeconds = g.Timeout
	}
	if g.Store != "" {
		settings.Store.Path = g.Store
	}
	if g.LogLevel != "" {
		settings.Log.Level = config.LogLevel(g.LogLevel)
	}
	return config.NormaliseSettings(settings)
}

func newLogger(cfg config.LogSettings) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr; stdout carries command output.
	var h slog.Handler
	switch cfg.Format {
	case config.LogFormatJSON:
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(h)
}

// app carries the wiring every subcommand shares.
type app struct {
	ctx      context.Context
	globals  *Globals
	settings config.Settings
	logger   *slog.Logger
	out      io.Writer
	errOut   io.Writer
	stdin    io.Reader
}

// storePath resolves where the sqlite store lives.
func (a *app) storePath() string {
	if a.settings.Store.Path != "" {
		return a.settings.Store.Path
	}
	return filepath.Join(config.Dir(), "courier.db")
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(a.storePath())
	if err != nil {
		return nil, err
	}
	st.SetMaxRuns(a.settings.Store.MaxRuns)
	return st, nil
}

// buildService assembles the full pipeline. The returned cleanup closes the
// store and flushes telemetry; callers must invoke it even on error paths
// once the service exists.
func (a *app) buildService() (*courier.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	instr := a.buildTelemetry(&closers)

	exec, err := a.buildExecutor(instr)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	resolver := auth.NewResolver(exec)
	resolver.SetLogger(a.logger)

	svc := courier.NewService(resolver, exec)
	svc.SetLogger(a.logger)
	svc.SetInstrumenter(instr)
	svc.SetBatchSize(a.settings.Batch.Size)
	if pause := a.settings.Batch.PauseSeconds; pause != nil {
		svc.SetBatchPause(secondsDuration(*pause))
	}

	varsResolver, err := a.buildVars()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	svc.SetVars(varsResolver)

	st, err := a.openStore()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() {
		if closeErr := st.Close(); closeErr != nil {
			a.logger.Warn("store close failed", "error", closeErr)
		}
	})
	resolver.SetCredentialSource(st)
	svc.SetJournal(st)

	return svc, cleanup, nil
}

// buildTelemetry initializes tracing from the environment, falling back to
// the settings file for fields the environment leaves empty. A broken
// telemetry setup degrades to no-op; runs still work.
func (a *app) buildTelemetry(closers *[]func()) telemetry.Instrumenter {
	cfg := telemetry.ConfigFromEnv(os.Getenv)
	fallback := a.settings.Telemetry
	if cfg.Endpoint == "" && fallback.Endpoint != "" {
		cfg.Endpoint = fallback.Endpoint
		cfg.Insecure = fallback.Insecure
	}
	if fallback.ServiceName != "" && os.Getenv("COURIER_OTEL_SERVICE") == "" {
		cfg.ServiceName = fallback.ServiceName
	}
	if len(cfg.Headers) == 0 {
		cfg.Headers = fallback.Headers
	}
	cfg.Version = version

	instr, err := telemetry.New(cfg)
	if err != nil {
		if cfg.Enabled() {
			a.logger.Warn("telemetry init failed", "error", err)
		}
		return telemetry.Noop()
	}
	*closers = append(*closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := instr.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Warn("telemetry shutdown failed", "error", shutdownErr)
		}
	})
	return instr
}

// buildExecutor assembles the transport chain: direct first, then whichever
// relay endpoints are configured.
func (a *app) buildExecutor(instr telemetry.Instrumenter) (*transport.Executor, error) {
	client := transport.NewClient()
	client.SetTelemetry(instr)
	transports := []transport.Transport{transport.NewDirect(client)}

	endpoints := []struct {
		name string
		cfg  config.RelayEndpoint
	}{
		{"relay-primary", a.settings.Relays.Primary},
		{"relay-secondary", a.settings.Relays.Secondary},
	}
	for _, ep := range endpoints {
		if !ep.cfg.Configured() {
			continue
		}
		r, err := transport.NewRelay(transport.RelayConfig{
			Name:     ep.name,
			Endpoint: ep.cfg.URL,
			Headers:  headerPairs(ep.cfg.Headers),
			Timeout:  secondsDuration(ep.cfg.TimeoutSeconds),
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ep.name, err)
		}
		r.SetTelemetry(instr)
		transports = append(transports, r)
	}

	exec := transport.NewExecutor(transports...)
	exec.SetLogger(a.logger)
	exec.SetSizeCeiling(a.settings.Limits.SizeCeilingBytes)
	exec.SetMaxPages(a.settings.Limits.MaxPages)
	exec.SetBaseOptions(transport.Options{
		Timeout:            secondsDuration(a.settings.Limits.TimeoutSeconds),
		FollowRedirects:    a.globals.Follow,
		InsecureSkipVerify: a.globals.Insecure,
	})

	switch {
	case a.settings.Rules.Path != "":
		rules, err := extract.LoadRules(a.settings.Rules.Path)
		if err != nil {
			return nil, err
		}
		exec.SetRules(rules)
	case len(a.settings.Rules.Paths) > 0:
		exec.SetRules(extract.RulesFromPaths(a.settings.Rules.Paths...))
	}
	return exec, nil
}

// buildVars assembles the placeholder resolver: the selected environment
// first, process env vars as fallback.
func (a *app) buildVars() (*vars.Resolver, error) {
	providers := []vars.Provider{}

	if a.globals.EnvFile != "" {
		envs, err := vars.LoadEnvironments(a.globals.EnvFile)
		if err != nil {
			return nil, err
		}
		name := vars.SelectEnv(envs, a.globals.Env, "")
		if a.globals.Env != "" && !strings.EqualFold(name, a.globals.Env) {
			return nil, fmt.Errorf(
				"environment %q not found in %s (have: %s)",
				a.globals.Env, a.globals.EnvFile, strings.Join(envNames(envs), ", "),
			)
		}
		if name == "" && len(envs) > 1 {
			return nil, fmt.Errorf(
				"environment file %s defines several environments (%s); pick one with --env",
				a.globals.EnvFile, strings.Join(envNames(envs), ", "),
			)
		}
		if name != "" {
			providers = append(providers, vars.NewMapProvider(name, vars.EnvValues(envs, name)))
		}
	}

	providers = append(providers, vars.EnvProvider{})
	return vars.NewResolver(providers...), nil
}

func envNames(envs vars.EnvironmentSet) []string {
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// headerPairs converts a settings header map into an ordered pair list.
// Sorted so relay calls replay identically across runs.
func headerPairs(headers map[string]string) reqspec.PairList {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make(reqspec.PairList, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, reqspec.Pair{Key: key, Value: headers[key]})
	}
	return pairs
}

func secondsDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
