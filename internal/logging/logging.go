// Package logging builds the zap logger every component writes to.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TerminalLogFile receives the log when a full-screen client owns stdout.
const TerminalLogFile = "mythic-paths.log"

// Config holds the logger settings.
type Config struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding   string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
	OutputPath string `yaml:"output" env:"LOG_OUTPUT"`
}

// ForTerminal moves console output to TerminalLogFile. An explicit file
// path is kept.
func (c Config) ForTerminal() Config {
	switch c.OutputPath {
	case "", "stdout", "stderr":
		c.OutputPath = TerminalLogFile
	}
	return c
}

func (c Config) output() string {
	if c.OutputPath == "" {
		return "stdout"
	}
	return c.OutputPath
}

func (c Config) encoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if strings.EqualFold(c.Encoding, "console") {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// New builds a logger. An unknown level is reported through the logger
// itself and replaced by info; an unknown encoding means json.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	var levelErr error
	if cfg.Level != "" {
		levelErr = level.UnmarshalText([]byte(strings.ToLower(cfg.Level)))
		if levelErr != nil {
			level = zapcore.InfoLevel
		}
	}

	sink, closeSink, err := zap.Open(cfg.output())
	if err != nil {
		return nil, fmt.Errorf("open log output %q: %w", cfg.output(), err)
	}
	errSink, _, err := zap.Open("stderr")
	if err != nil {
		closeSink()
		return nil, fmt.Errorf("open log error output: %w", err)
	}

	logger := zap.New(zapcore.NewCore(cfg.encoder(), sink, level), zap.ErrorOutput(errSink))
	if levelErr != nil {
		logger.Warn("Invalid log level, using info", zap.String("level", cfg.Level), zap.Error(levelErr))
	}
	return logger, nil
}

// Component returns a child of l tagged with the component name. A nil l
// gives a no-op logger.
func Component(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.With(zap.String("component", name))
}
