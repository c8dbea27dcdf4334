// Package logging configures the structured JSON log output shared by
// all telemetry components and provides the sink that turns recorded
// events and metrics into one structured record each.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures structured log output for this process.
type Options struct {
	Level string // debug, info, warn, error
	// FilePath, when set, additionally appends records to a log file.
	// The file may be shared by the primary and agents on one host;
	// creation is serialized with a file lock.
	FilePath string
}

var (
	configureOnce sync.Once
	root          = zap.NewNop()
)

// Configure builds the process logger. It is idempotent: only the first
// call takes effect, matching the once-per-process contract of the
// lifecycle coordinator's process-init phase.
func Configure(opts Options) error {
	var err error
	configureOnce.Do(func() {
		root, err = build(opts)
	})
	return err
}

// L returns the process logger. Before Configure it is a no-op logger.
func L() *zap.Logger {
	return root
}

func build(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoder := zapcore.NewJSONEncoder(encoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if opts.FilePath != "" {
		file, err := openSharedFile(opts.FilePath)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(file), level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// encoderConfig yields RFC3339 UTC timestamps with millisecond
// precision under "time", and levels under "level".
func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.LevelKey = "level"
	cfg.MessageKey = "message"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	return cfg
}

// openSharedFile opens the shared log file for appending, holding a
// sibling lock file while creating it so concurrent primary and agent
// processes on one host do not race the creation.
func openSharedFile(path string) (*os.File, error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking log file %s: %w", path, err)
	}
	defer lock.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return file, nil
}
