package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
)

// applyEnv reads the environment variables the server understands. Unset
// or empty variables leave cfg alone.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := getenv("DATA_PATH"); v != "" {
		cfg.DataPath = v
	}
	if v := getenv("STORE_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := getenv("API_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// applyFlags parses args over cfg. Each flag's default is the value cfg
// already holds, so only flags present on the command line change it.
//
// Supported flags:
//
//	-config path          JSON config file (read earlier by configPath)
//	-port int             HTTP port
//	-data path            state file
//	-format json|sqlite   storage backend
//	-autosave bool        write after changes (false: only on save/shutdown)
//	-autosave-delay dur   coalesce writes within this window
//	-tag-gc bool          delete tags nobody uses
//	-id-scheme xid|uuid   id token generator
//	-seed bool            add the starter template to a new store
//	-reset-corrupt        start empty if the state file is corrupt
//	-log-level name       debug, info, warn, error
//	-token-ttl dur        lifetime of issued API tokens
//	-issue-token          print an API token and exit
func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("snippet-organizer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ignored string
	fs.StringVar(&ignored, "config", "", "path to JSON config file")
	fs.StringVar(&ignored, "c", "", "path to JSON config file (short)")

	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "state file path")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "storage backend: json or sqlite")
	fs.BoolVar(&cfg.Autosave, "autosave", cfg.Autosave, "save automatically after changes")
	fs.DurationVar(&cfg.AutosaveDelay, "autosave-delay", cfg.AutosaveDelay, "coalesce autosaves within this window")
	fs.BoolVar(&cfg.TagGC, "tag-gc", cfg.TagGC, "delete tags no snippet uses")
	fs.StringVar(&cfg.IDScheme, "id-scheme", cfg.IDScheme, "id generator: xid or uuid")
	fs.BoolVar(&cfg.Seed, "seed", cfg.Seed, "add the starter template to a new store")
	fs.BoolVar(&cfg.ResetCorrupt, "reset-corrupt", cfg.ResetCorrupt, "start empty if the state file is corrupt")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "lifetime of issued API tokens")
	fs.BoolVar(&cfg.IssueToken, "issue-token", cfg.IssueToken, "print an API token and exit")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("config: unexpected argument %q", fs.Arg(0))
	}
	return nil
}
