// Package logger provides structured logging for the OmenDB engine.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with engine-specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "omendb").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

func (l *Logger) Info(msg string) *zerolog.Event  { return l.zlog.Info().Str("msg", msg) }
func (l *Logger) Debug(msg string) *zerolog.Event { return l.zlog.Debug().Str("msg", msg) }
func (l *Logger) Warn(msg string) *zerolog.Event  { return l.zlog.Warn().Str("msg", msg) }
func (l *Logger) Error(msg string) *zerolog.Event { return l.zlog.Error().Str("msg", msg) }
func (l *Logger) Fatal(msg string) *zerolog.Event { return l.zlog.Fatal().Str("msg", msg) }

// WithFields returns a logger with additional fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// PageLogger returns a sub-logger for the page manager.
func (l *Logger) PageLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "page").Logger()}
}

// WalLogger returns a sub-logger for the write-ahead log.
func (l *Logger) WalLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "wal").Logger()}
}

// MvccLogger returns a sub-logger for the MVCC subsystem.
func (l *Logger) MvccLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "mvcc").Logger()}
}

// SqlLogger returns a sub-logger for the SQL executor.
func (l *Logger) SqlLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "sql").Logger()}
}

// LogWalRotate logs a WAL file rotation.
func (l *Logger) LogWalRotate(oldFile, newFile string, size int64) {
	l.zlog.Info().
		Str("component", "wal").
		Str("old_file", oldFile).
		Str("new_file", newFile).
		Int64("size", size).
		Msg("wal rotated")
}

// LogRecovery logs WAL recovery statistics.
func (l *Logger) LogRecovery(total, applied, failed, corrupted int, lastSeq uint64) {
	l.zlog.Info().
		Str("component", "wal").
		Int("total", total).
		Int("applied", applied).
		Int("failed", failed).
		Int("corrupted", corrupted).
		Uint64("last_seq", lastSeq).
		Msg("wal recovery complete")
}

// LogTxnCommit logs a transaction commit or conflict.
func (l *Logger) LogTxnCommit(txnID uint64, commitTS uint64, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "mvcc").
		Uint64("txn_id", txnID).
		Uint64("commit_ts", commitTS).
		Dur("duration", duration)
	if err != nil {
		event = l.zlog.Warn().
			Str("component", "mvcc").
			Uint64("txn_id", txnID).
			Dur("duration", duration).
			Err(err)
	}
	event.Msg("transaction commit")
}

// LogQueryPlan logs a query-routing decision.
func (l *Logger) LogQueryPlan(kind string, path string, duration time.Duration) {
	l.zlog.Debug().
		Str("component", "query").
		Str("kind", kind).
		Str("path", path).
		Dur("duration", duration).
		Msg("query routed")
}

var globalLogger *Logger

// InitGlobalLogger initializes the global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance, initializing defaults if unset.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
