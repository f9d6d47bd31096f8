package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultLevel = "info"

type Config struct {
	Level              string `mapstructure:"level"`
	File               string `mapstructure:"file"`
	MaxFileSize        int    `mapstructure:"max-file-size"`
	MaxBackups         int    `mapstructure:"max-backups"`
	MaxAge             int    `mapstructure:"max-age"`
	CompressRotatedLog bool   `mapstructure:"compress-rotated-log"`
	TimeFormat         string `mapstructure:"time-format"`
	// stdout, stderr or empty for the file only
	StandardOutput string `mapstructure:"standard-output"`
}

// Setup replaces the global logger. Loggers taken from a context without one fall back to it.
func Setup(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	writers := make([]io.Writer, 0, 2)
	switch cfg.StandardOutput {
	case "stderr":
		writers = append(writers, os.Stderr)
	case "stdout":
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxFileSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.CompressRotatedLog,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(writers...))
	zerolog.DefaultContextLogger = &log.Logger
}
