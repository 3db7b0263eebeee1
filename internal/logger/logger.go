/**
 * Logger Implementation for SyncGuard
 *
 * Structured logging using zerolog with context awareness, operation-scoped
 * child loggers, and configurable output formats for CLI and library use.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-02
 */

package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with additional functionality.
type Logger struct {
	logger zerolog.Logger
	config *Config
}

// Config configures the logger behavior.
type Config struct {
	Output        io.Writer
	Fields        map[string]interface{}
	Level         string
	TimeFormat    string
	Pretty        bool
	IncludeCaller bool
}

// DefaultConfig logs to stderr so command output on stdout stays clean.
var DefaultConfig = &Config{
	Level:         "info",
	Output:        os.Stderr,
	Pretty:        false,
	IncludeCaller: false,
	Fields:        make(map[string]interface{}),
	TimeFormat:    time.RFC3339,
}

type contextKey struct{}

var loggerKey = contextKey{}

// New creates a new logger instance.
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig
	}

	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	if config.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: timeFormat,
			NoColor:    color.NoColor,
		}
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	for k, v := range config.Fields {
		logger = logger.With().Interface(k, v).Logger()
	}

	if config.IncludeCaller {
		logger = logger.With().CallerWithSkipFrameCount(3).Logger()
	}

	return &Logger{
		logger: logger,
		config: config,
	}
}

// Nop returns a logger that discards everything. Handy as a default dependency.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop(), config: DefaultConfig}
}

// WithContext adds the logger to context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by WithContext, or fallback when
// ctx carries none.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return Global()
}

// With creates a child logger with additional fields. Accepts either
// key/value pairs or a single map[string]interface{}.
func (l *Logger) With(fields ...interface{}) *Logger {
	newLogger := l.logger.With()

	if len(fields) == 1 {
		if m, ok := fields[0].(map[string]interface{}); ok {
			for k, v := range m {
				newLogger = newLogger.Interface(k, v)
			}
			return &Logger{logger: newLogger.Logger(), config: l.config}
		}
	}

	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			newLogger = newLogger.Interface(key, fields[i+1])
		}
	}

	return &Logger{
		logger: newLogger.Logger(),
		config: l.config,
	}
}

// WithField creates a child logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
		config: l.config,
	}
}

// WithOperation scopes a child logger to one sync operation.
func (l *Logger) WithOperation(operationID, table string) *Logger {
	ctx := l.logger.With().Str("operation_id", operationID)
	if table != "" {
		ctx = ctx.Str("table", table)
	}
	return &Logger{logger: ctx.Logger(), config: l.config}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Debug(), msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Info(), msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Warn(), msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string, fields ...interface{}) {
	event := l.logger.Error()
	if err != nil {
		event = event.Err(err)
	}
	l.logEvent(event, msg, fields...)
}

// Trace logs a trace message for detailed debugging.
func (l *Logger) Trace(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Trace(), msg, fields...)
}

// logEvent processes field pairs and sends the log event.
func (l *Logger) logEvent(event *zerolog.Event, msg string, fields ...interface{}) {
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, fields[i+1])
	}

	event.Msg(msg)
}

// LogOperation logs the start and end of an operation.
func (l *Logger) LogOperation(op string, fn func() error) error {
	start := time.Now()
	l.Debug("Operation started", "operation", op)

	err := fn()

	duration := time.Since(start)
	if err != nil {
		l.Error(err, "Operation failed",
			"operation", op,
			"duration", duration,
		)
	} else {
		l.Debug("Operation completed",
			"operation", op,
			"duration", duration,
		)
	}

	return err
}

// LogRecovery records the outcome of one recovery execution. Failed
// recoveries are logged at warn level since they need an operator.
func (l *Logger) LogRecovery(operationID, strategy, action string, success bool, duration time.Duration) {
	event := l.logger.Info()
	if !success {
		event = l.logger.Warn()
	}

	event.
		Str("operation_id", operationID).
		Str("strategy", strategy).
		Str("action", action).
		Bool("success", success).
		Dur("duration", duration).
		Msg("Recovery finished")
}

var global *Logger

// Init initializes the global logger.
func Init(config *Config) {
	global = New(config)
	log.Logger = global.logger
}

// Global returns the global logger instance.
func Global() *Logger {
	if global == nil {
		Init(DefaultConfig)
	}
	return global
}

// FileWriter is an io.Writer over a size-rotated log file.
type FileWriter struct {
	file       *os.File
	filename   string
	maxSize    int64
	maxBackups int
}

// NewFileWriter creates a new file writer.
func NewFileWriter(filename string, maxSize int64, maxBackups int) (*FileWriter, error) {
	fw := &FileWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}

	if err := fw.openFile(); err != nil {
		return nil, err
	}

	return fw, nil
}

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (n int, err error) {
	if fw.file != nil && fw.maxSize > 0 {
		info, err := fw.file.Stat()
		if err == nil && info.Size()+int64(len(p)) > fw.maxSize {
			if err := fw.rotate(); err != nil {
				return 0, err
			}
		}
	}

	return fw.file.Write(p)
}

// Close closes the file writer.
func (fw *FileWriter) Close() error {
	if fw.file != nil {
		return fw.file.Close()
	}
	return nil
}

func (fw *FileWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(fw.filename), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(fw.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	fw.file = file
	return nil
}

func (fw *FileWriter) rotate() error {
	if err := fw.file.Close(); err != nil {
		return err
	}

	for i := fw.maxBackups - 1; i > 0; i-- {
		oldName := fmt.Sprintf("%s.%d", fw.filename, i)
		newName := fmt.Sprintf("%s.%d", fw.filename, i+1)
		_ = os.Rename(oldName, newName)
	}

	if err := os.Rename(fw.filename, fw.filename+".1"); err != nil {
		return err
	}

	return fw.openFile()
}
