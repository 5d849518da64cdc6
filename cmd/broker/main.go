// Command broker is the agent-relay broker: it wraps a single CLI
// agent process, relays it against the coordination service's WS
// stream, and exposes a local read-only control API.
//
// Invoked as `broker [flags] -- <command> [args...]` it runs the
// broker itself. Re-exec'd as `broker wrap --name <name> [--rows <n>]
// [--cols <n>] --command <command> -- [args...]` (its own convention
// for owning a worker's PTY
// or container exec session out-of-process) it runs the worker-side
// protocol loop instead.
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
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/AgentWorkforce/relay-broker/internal/audit"
	"github.com/AgentWorkforce/relay-broker/internal/config"
	"github.com/AgentWorkforce/relay-broker/internal/controlapi"
	"github.com/AgentWorkforce/relay-broker/internal/credentials"
	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/events"
	"github.com/AgentWorkforce/relay-broker/internal/pipeline"
	"github.com/AgentWorkforce/relay-broker/internal/relayhttp"
	"github.com/AgentWorkforce/relay-broker/internal/workerproc"
	"github.com/AgentWorkforce/relay-broker/internal/wsclient"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "wrap" {
		if err := runWrap(os.Args[2:]); err != nil {
			slog.Error("worker process failed", "error", err)
			os.Exit(1)
		}
		return
	}
	runBroker()
}

func runBroker() {
	bootLogger := newLogger("info", false, os.Stderr)

	if err := godotenv.Load(); err != nil {
		bootLogger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logWriter := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			bootLogger.Error("failed to open log file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logWriter = io.MultiWriter(os.Stderr, f)
	}
	logger := newLogger(cfg.LogLevel, cfg.JSONOutput, logWriter)
	slog.SetDefault(logger)

	// cfg.Sandbox may have come from --sandbox rather than the
	// AGENT_RELAY_SANDBOX env var; re-export it so the re-exec'd wrap
	// subprocess (which reads its own environment, not our flags) picks
	// the same driver.
	os.Setenv("AGENT_RELAY_SANDBOX", cfg.Sandbox)

	emitter := events.New(logger, cfg.JSONOutput, os.Stderr)

	auditPath := getEnv("AGENT_RELAY_AUDIT_DB", filepath.Join(defaultStateDir(), "audit.db"))
	auditStore, err := audit.Open(auditPath)
	if err != nil {
		logger.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer auditStore.Close()

	selfExe, err := os.Executable()
	if err != nil {
		logger.Error("failed to resolve broker executable path", "error", err)
		os.Exit(1)
	}

	spawn := func(ctx context.Context, spec domain.AgentSpec) (pipeline.WorkerHandle, error) {
		return workerproc.SpawnParent(ctx, selfExe, spec, emitter, logger)
	}

	pl := pipeline.New(pipeline.Options{
		HumanCooldownMs:  uint64(cfg.HumanCooldown.Milliseconds()),
		CoalesceWindowMs: uint64(cfg.CoalesceWindow.Milliseconds()),
		QueueMax:         cfg.QueueMax,
		Events:           emitter,
		Audit:            auditStore,
		Logger:           logger,
		Spawn:            spawn,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pl.AddAgent(ctx, domain.AgentSpec{
		Name:     cfg.Name,
		Runtime:  domain.RuntimeGeneric,
		Command:  cfg.Command,
		Args:     cfg.Args,
		Channels: cfg.Channels,
		Rows:     cfg.Rows,
		Cols:     cfg.Cols,
	}); err != nil {
		logger.Error("failed to spawn wrapped agent", "error", err)
		os.Exit(1)
	}

	credsPath := getEnv("AGENT_RELAY_CREDENTIALS_FILE", filepath.Join(defaultStateDir(), "credentials.json"))
	credStore := credentials.NewStore(credsPath)

	httpClient := relayhttp.New(relayhttp.Options{
		BaseURL: getEnv("AGENT_RELAY_BASE_URL", relayhttp.DefaultBaseURL),
		APIKey:  cfg.APIKey,
	})
	tokens := newSessionTokenSource(httpClient, credStore, cfg.APIKey, logger)

	session := wsclient.New(getEnv("AGENT_RELAY_BASE_URL", relayhttp.DefaultBaseURL), tokens, wsclient.NewReplayRing(), logger)
	session.SetSubscriptions(cfg.Channels)

	controlSrv := controlapi.New(pl, auditStore)
	httpSrv := &http.Server{
		Addr:         getEnv("AGENT_RELAY_CONTROL_ADDR", ":8088"),
		Handler:      controlSrv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("control api listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control api server failed", "error", err)
		}
	}()

	logger.Info("broker started", "agent", cfg.Name, "channels", cfg.Channels, "sandbox", cfg.Sandbox)
	pl.Run(ctx, session)

	logger.Info("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control api forced to shutdown", "error", err)
	}
	if err := pl.RemoveAgent(shutdownCtx, cfg.Name, "broker shutting down", 5*time.Second); err != nil {
		logger.Warn("failed to gracefully release wrapped agent", "error", err)
	}
	logger.Info("broker stopped")
}

// runWrap implements the worker side of SpawnParent's re-exec
// convention: owning a PTY (or a container exec session, selected via
// --sandbox) and speaking the line-delimited JSON protocol over
// stdio.
func runWrap(argv []string) error {
	fs := pflag.NewFlagSet("wrap", pflag.ContinueOnError)
	name := fs.String("name", "", "agent name")
	command := fs.String("command", "", "command to run")
	rows := fs.Uint16("rows", 24, "initial PTY row count")
	cols := fs.Uint16("cols", 80, "initial PTY column count")
	sandbox := fs.String("sandbox", getEnv("AGENT_RELAY_SANDBOX", ""), `worker driver: "" for a host PTY, "docker" to exec into a container`)
	containerID := fs.String("container-id", getEnv("AGENT_RELAY_CONTAINER_ID", ""), "container to exec into when --sandbox=docker")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	args := fs.Args()

	logger := newLogger(getEnv("AGENT_RELAY_LOG_LEVEL", "info"), getEnvBool("AGENT_RELAY_JSON_OUTPUT"), os.Stderr)

	driver, err := buildDriver(*sandbox, *containerID, *command, args, *rows, *cols, logger)
	if err != nil {
		return fmt.Errorf("build worker driver: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return workerproc.Wrap(ctx, workerproc.WrapConfig{
		AgentName: *name,
		Driver:    driver,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Logger:    logger,
	})
}

func buildDriver(sandbox, containerID, command string, args []string, rows, cols uint16, logger *slog.Logger) (workerproc.Driver, error) {
	switch sandbox {
	case "", "none", "host":
		return workerproc.SpawnPTY(command, args, rows, cols, nil)
	case "docker":
		if containerID == "" {
			return nil, fmt.Errorf("--sandbox=docker requires --container-id (or AGENT_RELAY_CONTAINER_ID) naming an already-running container")
		}
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("create docker client: %w", err)
		}
		return workerproc.NewDockerDriver(context.Background(), cli, containerID, command, args, rows, cols, nil, logger)
	default:
		return nil, fmt.Errorf("unknown sandbox driver %q", sandbox)
	}
}

// newLogger builds the broker's logger: structured JSON when
// --json-output is set (for machine consumers of --log-file), a
// colorized human-readable line format otherwise.
func newLogger(level string, jsonOutput bool, w io.Writer) *slog.Logger {
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{Level: parseLevel(level), TimeFormat: time.Kitchen}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("AGENT_RELAY_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agent-relay"
	}
	return filepath.Join(home, ".agent-relay")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
