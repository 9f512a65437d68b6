package cmd

import (
	"fmt"
	"io"
	"os"

	"wallpaper-notify/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogger configures the global zerolog logger.
// An empty level means info; an unknown one is an error.
// When cfg.File is set, logs are also written to a rotating file; the returned
// Closer releases it.
func setupLogger(cfg config.LogConfig) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(level)

	return closer, nil
}
