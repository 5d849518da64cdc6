// Package config provides application configuration.
//
// Defaults are environment-variable driven, in the same
// getEnv/getEnvBool/getEnvInt shape used throughout
// this project; on top of that, Load parses the §6 CLI surface with
// github.com/spf13/pflag so flags can override env vars, which
// override the built-in defaults.
//
// For a complete list of recognized flags and environment variables,
// see spec.md §6 "EXTERNAL INTERFACES".
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config holds the parsed CLI & environment surface for one wrapped
// agent process.
type Config struct {
	Name     string
	Channels []string

	HumanCooldown  time.Duration
	CoalesceWindow time.Duration
	QueueMax       int
	MaxRetries     int
	RetryDelay     time.Duration

	Rows, Cols uint16

	LogLevel        string
	LogFile         string
	JSONOutput      bool
	LogConversation string

	// Sandbox selects the worker driver: "" (default) spawns a bare
	// host PTY process, "docker" attaches to an exec session inside a
	// container instead.
	Sandbox string

	// Command is the CLI to wrap, Args its arguments (everything
	// after "--" on the command line).
	Command string
	Args    []string

	// APIKey authenticates outbound calls to the coordination
	// service; read from RELAYCAST_API_KEY, never a flag.
	APIKey string
	// TelemetryDisabled opts the process out of anonymous usage
	// telemetry; read from AGENT_RELAY_TELEMETRY_DISABLED.
	TelemetryDisabled bool
}

// Load parses argv (typically os.Args[1:]) into a Config, applying
// environment-variable defaults first and flag overrides second.
func Load(argv []string) (*Config, error) {
	fs := pflag.NewFlagSet("agent-relay", pflag.ContinueOnError)

	name := fs.String("name", "", "name to register this agent under")
	channels := fs.String("channels", getEnv("AGENT_RELAY_CHANNELS", "general"), "comma-separated channel subscription set")
	humanCooldown := fs.Uint64("human-cooldown", uint64(getEnvInt("AGENT_RELAY_HUMAN_COOLDOWN_MS", 3000)), "milliseconds to suppress injection after detected human activity")
	coalesceWindow := fs.Uint64("coalesce-window", uint64(getEnvInt("AGENT_RELAY_COALESCE_WINDOW_MS", 500)), "milliseconds to coalesce rapid-fire deliveries to the same target")
	queueMax := fs.Int("queue-max", getEnvInt("AGENT_RELAY_QUEUE_MAX", 200), "max pending deliveries retained in the shared outbound queue before overflow eviction")
	maxRetries := fs.Int("max-retries", getEnvInt("AGENT_RELAY_MAX_RETRIES", 3), "echo verification retry ceiling (validated and stored only; workers use the fixed echo.MaxRounds)")
	retryDelay := fs.Uint64("retry-delay", uint64(getEnvInt("AGENT_RELAY_RETRY_DELAY_MS", 300)), "milliseconds between echo verification retries (stored only; not passed to workers)")
	rows := fs.Uint16("rows", uint16(getEnvInt("AGENT_RELAY_ROWS", 0)), "initial PTY row count (0 = driver default)")
	cols := fs.Uint16("cols", uint16(getEnvInt("AGENT_RELAY_COLS", 0)), "initial PTY column count (0 = driver default)")
	logLevel := fs.String("log-level", getEnv("AGENT_RELAY_LOG_LEVEL", "info"), "slog level: debug, info, warn, error")
	logFile := fs.String("log-file", getEnv("AGENT_RELAY_LOG_FILE", ""), "path to append structured logs to, in addition to stderr")
	jsonOutput := fs.Bool("json-output", getEnvBool("AGENT_RELAY_JSON_OUTPUT", false), "emit structured events to stderr as JSON lines")
	logConversation := fs.String("log-conversation", getEnv("AGENT_RELAY_LOG_CONVERSATION", ""), "path to append the raw relayed conversation to")
	sandbox := fs.String("sandbox", getEnv("AGENT_RELAY_SANDBOX", ""), `worker driver: "" for a host PTY, "docker" to exec into a container`)

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	positional := fs.Args()
	if len(positional) < 1 {
		return nil, fmt.Errorf("missing required command to wrap")
	}

	cfg := &Config{
		Name:              *name,
		Channels:          splitChannels(*channels),
		HumanCooldown:     time.Duration(*humanCooldown) * time.Millisecond,
		CoalesceWindow:    time.Duration(*coalesceWindow) * time.Millisecond,
		QueueMax:          *queueMax,
		MaxRetries:        *maxRetries,
		RetryDelay:        time.Duration(*retryDelay) * time.Millisecond,
		Rows:              *rows,
		Cols:              *cols,
		LogLevel:          *logLevel,
		LogFile:           *logFile,
		JSONOutput:        *jsonOutput,
		LogConversation:   *logConversation,
		Sandbox:           *sandbox,
		Command:           positional[0],
		Args:              positional[1:],
		APIKey:            os.Getenv("RELAYCAST_API_KEY"),
		TelemetryDisabled: getEnvBool("AGENT_RELAY_TELEMETRY_DISABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func splitChannels(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command to wrap cannot be empty")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if c.QueueMax <= 0 {
		return fmt.Errorf("queue-max must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
