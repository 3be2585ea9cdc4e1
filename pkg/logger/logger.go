package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"prescription-analytics-api/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// Init configures the standard logrus logger
func Init(cfg config.LoggerConfig) {
	Configure(logrus.StandardLogger(), cfg)
}

// New returns a logger configured like the standard one
func New(cfg config.LoggerConfig) *logrus.Logger {
	l := logrus.New()
	Configure(l, cfg)
	return l
}

// Configure applies level, format and output settings to l
func Configure(l *logrus.Logger, cfg config.LoggerConfig) {
	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	// Set log format
	switch cfg.Format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}

	// Set output
	switch cfg.Output {
	case "file":
		if cfg.Filename != "" {
			l.SetOutput(getFileWriter(cfg))
		} else {
			l.SetOutput(os.Stdout)
		}
	case "both":
		if cfg.Filename != "" {
			l.SetOutput(io.MultiWriter(os.Stdout, getFileWriter(cfg)))
		} else {
			l.SetOutput(os.Stdout)
		}
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		l.SetOutput(os.Stdout)
	}
}

// getFileWriter returns a file writer with rotation
func getFileWriter(cfg config.LoggerConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}
