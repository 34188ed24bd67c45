// ABOUTME: Entry point for the gateway-sentry authentication daemon
// ABOUTME: Wires config, gateway client, login engine, strategy and scheduler together

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/gateway-sentry/internal/browser"
	"github.com/2389/gateway-sentry/internal/config"
	"github.com/2389/gateway-sentry/internal/daemon"
	"github.com/2389/gateway-sentry/internal/gateway"
	"github.com/2389/gateway-sentry/internal/health"
	"github.com/2389/gateway-sentry/internal/login"
	"github.com/2389/gateway-sentry/internal/process"
	"github.com/2389/gateway-sentry/internal/secrets"
	"github.com/2389/gateway-sentry/internal/store"
	"github.com/2389/gateway-sentry/internal/strategy"
	"github.com/2389/gateway-sentry/internal/twofa"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _                                            _
  __ _  __ _| |_ _____      ____ _ _   _       ___  ___ _ __ | |_ _ __ _   _
 / _' |/ _' | __/ _ \ \ /\ / / _' | | | |_____/ __|/ _ \ '_ \| __| '__| | | |
| (_| | (_| | ||  __/\ V  V / (_| | |_| |_____\__ \  __/ | | | |_| |  | |_| |
 \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |     |___/\___|_| |_|\__|_|   \__, |
 |___/                             |___/                               |___/
`

// exitShutdown distinguishes a protective shutdown from ordinary failures
// so supervisors can avoid restarting into the same account lockout.
const exitShutdown = 2

// getConfigPath returns the path to the sentry config file.
// Priority: SENTRY_CONFIG env var > XDG_CONFIG_HOME/gateway-sentry/sentry.yaml > ~/.config/gateway-sentry/sentry.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SENTRY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "sentry.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "gateway-sentry", "sentry.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: gateway-sentry <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve         Run the maintenance daemon")
		fmt.Println("  authenticate  Run one authentication cycle and exit")
		fmt.Println("  check         Print the current session status")
		fmt.Println("  tickle        Print the raw tickle response")
		fmt.Println("  validate      Check whether the SSO session is valid")
		fmt.Println("  init          Ask the gateway to (re)initialise the brokerage session")
		fmt.Println("  start         Ensure the gateway process is running")
		fmt.Println("  kill          Terminate the gateway process")
		fmt.Println("  health        Query the daemon's readiness endpoint")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "authenticate":
		err = runAuthenticate(ctx)
	case "check":
		err = runCheck(ctx)
	case "tickle":
		err = runTickle(ctx)
	case "validate":
		err = runValidate(ctx)
	case "init":
		err = runInit(ctx)
	case "start":
		err = runStart(ctx)
	case "kill":
		err = runKill(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, daemon.ErrShutdownRequested) {
			os.Exit(exitShutdown)
		}
		os.Exit(1)
	}
}

// components is everything runServe and runAuthenticate share.
type components struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *gateway.Client
	procs    *process.Manager
	strategy *strategy.Engine
	metrics  *health.Metrics
	store    *store.SQLiteStore // nil when disabled
}

// build loads configuration and wires the authentication stack together.
func build(ctx context.Context) (*components, error) {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	client, err := gateway.NewClient(cfg.Gateway, logger)
	if err != nil {
		return nil, fmt.Errorf("creating gateway client: %w", err)
	}

	source, err := secrets.New(cfg.Secrets.Source, cfg.Secrets.GCPBaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("creating secrets source: %w", err)
	}
	creds, err := secrets.Load(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	handler, err := twofa.New(cfg.TwoFA, logger)
	if err != nil {
		return nil, fmt.Errorf("creating two-factor handler: %w", err)
	}

	// Fail on bad locator overrides now rather than mid-login.
	for _, v := range []int{1, 2} {
		if _, err := browser.ResolveTargets(v, cfg.Login.Targets, logger); err != nil {
			return nil, fmt.Errorf("resolving login targets: %w", err)
		}
	}

	metrics := health.NewMetrics()
	shots := login.NewScreenshots(cfg.Outputs.Dir, cfg.Outputs.ErrorScreenshots, logger)
	chrome := browser.NewChrome(cfg.Browser, logger)
	engine := login.NewEngine(cfg, client.LoginURL(), creds, chrome, handler, shots, logger)
	procs := process.NewManager(cfg.Gateway, logger)

	var auditStore *store.SQLiteStore
	if cfg.Store.Path != "" {
		auditStore, err = store.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
	}

	var killer strategy.Killer = procs
	if auditStore != nil {
		killer = daemon.RecordingKiller{Killer: killer, Recorder: auditStore, Strategy: cfg.Auth.Strategy, Logger: logger}
	}

	strat := strategy.NewEngine(cfg.Auth,
		daemon.InstrumentedGateway{Gateway: client, Metrics: metrics},
		daemon.InstrumentedLogin{Authenticator: engine, Metrics: metrics},
		daemon.InstrumentedKiller{Killer: killer, Metrics: metrics},
		logger)

	return &components{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		procs:    procs,
		strategy: strat,
		metrics:  metrics,
		store:    auditStore,
	}, nil
}

func (c *components) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Gateway:  %s\n", c.cfg.Gateway.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Health:   %s\n", c.cfg.Health.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Strategy: %s\n", c.cfg.Auth.Strategy)
	fmt.Println()

	c.logger.Info("starting gateway-sentry",
		"gateway", c.cfg.Gateway.BaseURL,
		"health_addr", c.cfg.Health.Addr,
		"strategy", c.cfg.Auth.Strategy,
	)

	healthSrv := health.NewServer(c.cfg.Health.Addr, c.client, c.metrics, c.logger)

	var recorder daemon.Recorder
	if c.store != nil {
		recorder = c.store
	}

	d := daemon.New(c.cfg, c.strategy, c.procs, healthSrv, c.metrics, recorder, c.logger)
	return d.Run(ctx)
}

func runAuthenticate(ctx context.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if _, _, err := c.procs.EnsureStarted(ctx); err != nil {
		c.logger.Warn("Could not ensure the gateway process is running", "error", err)
	}

	outcome := c.strategy.TryAuthenticating(ctx, c.cfg.Gateway.RequestRetries)
	fmt.Println(outcome.Status.String())

	if outcome.Shutdown {
		return daemon.ErrShutdownRequested
	}
	if !outcome.Success {
		return errors.New("authentication failed")
	}
	return nil
}

func runCheck(ctx context.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	st := c.client.Status(ctx)
	fmt.Println(st.String())

	if !st.Healthy() {
		return fmt.Errorf("session unhealthy: %s", st.Classify())
	}
	return nil
}

func runTickle(ctx context.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	st := c.client.Status(ctx)
	if len(st.Raw) > 0 {
		fmt.Println(string(st.Raw))
	} else {
		fmt.Println(st.String())
	}
	return nil
}

func runValidate(ctx context.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	ok, err := c.client.Validate(ctx)
	if err != nil {
		return fmt.Errorf("validating session: %w", err)
	}
	if !ok {
		return errors.New("SSO session is not valid")
	}
	fmt.Println("SSO session is valid")
	return nil
}

func runInit(ctx context.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.client.Initialise(ctx); err != nil {
		return err
	}
	fmt.Println(c.client.Status(ctx).String())
	return nil
}

func runStart(ctx context.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	pid, started, err := c.procs.EnsureStarted(ctx)
	if err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}
	if started {
		fmt.Printf("gateway started, pid %d\n", pid)
	} else {
		fmt.Printf("gateway already running, pid %d\n", pid)
	}
	return nil
}

func runKill(ctx context.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.procs.Kill(ctx); err != nil {
		return fmt.Errorf("killing gateway: %w", err)
	}
	fmt.Println("gateway terminated")
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/readyz", cfg.Health.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: %s", strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
			w:     os.Stdout,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// The "component" attr every subsystem logger carries is rendered as a
// prefix rather than a trailing key=value pair.
type colorHandler struct {
	mu     sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Handler-level attrs come from WithAttrs, record attrs from the call
	// site. The first "component" found wins the prefix slot.
	component := ""
	var rest []slog.Attr
	for _, a := range h.attrs {
		if a.Key == "component" && component == "" {
			component = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" && component == "" {
			component = a.Value.String()
			return true
		}
		rest = append(rest, a)
		return true
	})

	if component != "" {
		buf.WriteString(color.BlueString("[" + component + "] "))
	}

	buf.WriteString(r.Message)

	for _, a := range rest {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	buf.WriteString("\n")
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		w:      h.w,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		w:      h.w,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
