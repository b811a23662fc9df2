package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Duration reads either a Go duration string ("750ms") or an integer number
// of nanoseconds from JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
}

// fileConfig mirrors Config for JSON files. Pointer fields distinguish "not
// in the file" from a zero value, so a file only overrides what it names.
type fileConfig struct {
	Port          *int      `json:"port"`
	DataPath      *string   `json:"data_path"`
	Format        *string   `json:"store_format"`
	Autosave      *bool     `json:"autosave"`
	AutosaveDelay *Duration `json:"autosave_delay"`
	TagGC         *bool     `json:"tag_gc"`
	IDScheme      *string   `json:"id_scheme"`
	Seed          *bool     `json:"seed"`
	ResetCorrupt  *bool     `json:"reset_corrupt"`
	LogLevel      *string   `json:"log_level"`
	TokenSecret   *string   `json:"api_token_secret"`
	TokenTTL      *Duration `json:"api_token_ttl"`
}

func applyJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var fc fileConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	set(&cfg.Port, fc.Port)
	set(&cfg.DataPath, fc.DataPath)
	set(&cfg.Format, fc.Format)
	set(&cfg.Autosave, fc.Autosave)
	set(&cfg.TagGC, fc.TagGC)
	set(&cfg.IDScheme, fc.IDScheme)
	set(&cfg.Seed, fc.Seed)
	set(&cfg.ResetCorrupt, fc.ResetCorrupt)
	set(&cfg.LogLevel, fc.LogLevel)
	set(&cfg.TokenSecret, fc.TokenSecret)
	if fc.AutosaveDelay != nil {
		cfg.AutosaveDelay = fc.AutosaveDelay.Duration
	}
	if fc.TokenTTL != nil {
		cfg.TokenTTL = fc.TokenTTL.Duration
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// configPath finds -config (or -c) in args without parsing anything else,
// since the full flag set is applied only after the file and environment.
func configPath(args []string) string {
	var path string
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(strings.TrimLeft(args[i], "-"), "=")
		if !strings.HasPrefix(args[i], "-") || (name != "config" && name != "c") {
			continue
		}
		if hasValue {
			path = value
		} else if i+1 < len(args) {
			path = args[i+1]
			i++
		}
	}
	return path
}
