// Package config assembles the server's runtime settings.
//
// PRECEDENCE (later sources win):
//
//	1. Defaults()
//	2. JSON file named by -config (optional)
//	3. Environment: PORT, DATA_PATH, STORE_FORMAT, API_TOKEN_SECRET, LOG_LEVEL
//	4. Command-line flags
//
// Load returns an error instead of exiting so cmd/server decides how to
// report it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Storage backends.
const (
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

type Config struct {
	Port int
	// DataPath is the state file. Empty means data/snippets.<format ext>.
	DataPath string
	// Format picks the persistence backend: "json" or "sqlite".
	Format string

	// Autosave writes after every change. When false, state is only written
	// by an explicit save and on shutdown.
	Autosave bool
	// AutosaveDelay coalesces bursts of changes into one write. Zero writes
	// after each change.
	AutosaveDelay time.Duration

	// TagGC deletes a tag once no snippet carries it.
	TagGC bool
	// IDScheme is "xid" or "uuid".
	IDScheme string
	// Seed adds the starter template when no state exists yet.
	Seed bool
	// ResetCorrupt starts empty instead of refusing to start on a corrupt file.
	ResetCorrupt bool

	LogLevel string

	// TokenSecret enables bearer-token auth on /api when set.
	TokenSecret string
	TokenTTL    time.Duration
	// IssueToken prints a fresh API token and exits.
	IssueToken bool
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Config {
	return Config{
		Port:          8080,
		Format:        FormatJSON,
		Autosave:      true,
		AutosaveDelay: 500 * time.Millisecond,
		TagGC:         true,
		IDScheme:      "xid",
		Seed:          true,
		LogLevel:      "info",
		TokenTTL:      30 * 24 * time.Hour,
	}
}

// Load applies every source in order. args excludes the program name;
// getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Defaults()

	if path := configPath(args); path != "" {
		if err := applyJSON(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := applyFlags(&cfg, args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Port))
	}
	if c.Format != FormatJSON && c.Format != FormatSQLite {
		errs = append(errs, fmt.Errorf("config: unknown store format %q (want json or sqlite)", c.Format))
	}
	if c.IDScheme != "xid" && c.IDScheme != "uuid" {
		errs = append(errs, fmt.Errorf("config: unknown id scheme %q (want xid or uuid)", c.IDScheme))
	}
	if c.AutosaveDelay < 0 {
		errs = append(errs, errors.New("config: autosave delay must not be negative"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.TokenSecret != "" && len(c.TokenSecret) < 16 {
		errs = append(errs, errors.New("config: API token secret must be at least 16 characters"))
	}
	if c.IssueToken && c.TokenSecret == "" {
		errs = append(errs, errors.New("config: -issue-token needs API_TOKEN_SECRET"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("config: token TTL must be positive"))
	}
	return errors.Join(errs...)
}

// StatePath resolves the state file location.
func (c Config) StatePath() string {
	if c.DataPath != "" {
		return c.DataPath
	}
	if c.Format == FormatSQLite {
		return "data/snippets.db"
	}
	return "data/snippets.json"
}

// Level is the slog level named by LogLevel. Validate has already rejected
// unknown names, so this falls back to Info only for an unvalidated Config.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", name)
	}
	return l, nil
}
