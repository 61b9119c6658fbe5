package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// logConfig is read from the environment before flags are parsed.
type logConfig struct {
	Level  string `env:"JSONIC_LOG_LEVEL" envDefault:"info"`
	File   string `env:"JSONIC_LOG_FILE"`
	Format string `env:"JSONIC_LOG_FORMAT" envDefault:"text"`
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "jsonic").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "jsonic.log"), nil
}

// setupLog configures the default logger and returns a func that releases
// the log file, if any.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONIC_LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	switch cfg.Format {
	case "json":
		log.SetFormatter(log.JSONFormatter)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
	case "text", "":
	default:
		return nil, fmt.Errorf("invalid JSONIC_LOG_FORMAT %q: use text, json or logfmt", cfg.Format)
	}

	noop := func() error { return nil }
	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return noop, nil
	}

	path := cfg.File
	if path == "default" {
		if path, err = getLogFilePath(); err != nil {
			return noop, nil //nolint:nilerr
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		// log disabled
		log.SetOutput(io.Discard)
		return noop, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		log.SetOutput(io.Discard)
		return noop, nil //nolint:nilerr
	}
	log.SetOutput(f)
	return f.Close, nil
}
