package lwt

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// globalLogSinks fans the package default logger's output out to whichever
// of stdout and a log file are currently enabled, mirroring the
// original's two process-global settings Log::enableStdOut and
// Log::logFileName (original_source/src/lwt/Log.h/.cc): both default to
// off, so a scheduler built without WithLogger produces no output at
// all until SetStdoutEcho or SetLogFile turns one on.
type globalLogSinks struct {
	mu     sync.Mutex
	stdout bool
	file   *os.File
}

func (s *globalLogSinks) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdout {
		_, _ = os.Stdout.Write(p)
	}
	if s.file != nil {
		_, _ = s.file.Write(p)
	}
	return len(p), nil
}

var processLogSinks = &globalLogSinks{}

// SetStdoutEcho enables or disables echoing the package default
// logger's output to stdout, on top of any log file configured via
// SetLogFile. It has no effect on a scheduler built with an explicit
// WithLogger.
func SetStdoutEcho(enabled bool) {
	processLogSinks.mu.Lock()
	processLogSinks.stdout = enabled
	processLogSinks.mu.Unlock()
}

// SetLogFile directs the package default logger's output to path, in
// addition to stdout if SetStdoutEcho(true) was called. Passing ""
// closes any previously configured file and stops file logging.
func SetLogFile(path string) error {
	processLogSinks.mu.Lock()
	defer processLogSinks.mu.Unlock()
	if processLogSinks.file != nil {
		_ = processLogSinks.file.Close()
		processLogSinks.file = nil
	}
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return WrapError("open log file "+path, err)
	}
	processLogSinks.file = f
	return nil
}

// logger wraps a logiface.Logger[*stumpy.Event], giving the runtime one
// structured JSON-lines sink shared by the scheduler, fibers (panic
// recovery), the descriptor registry and the worker pool. A fiber's
// Tag is attached as the "tag" field on the fiber panic-recovery line;
// other log lines carry no fiber tag.
type logger struct {
	base *logiface.Logger[*stumpy.Event]
}

// newDefaultLogger builds the package default: informational level,
// stumpy JSON encoding fanned out through processLogSinks (nothing, by
// default, until SetStdoutEcho or SetLogFile enables a destination).
func newDefaultLogger() *logger {
	return newLogger(processLogSinks, logiface.LevelInformational)
}

// newLogger builds a logger writing stumpy-encoded JSON lines to w at
// the given minimum level.
func newLogger(w io.Writer, level logiface.Level) *logger {
	base := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](level),
	)
	return &logger{base: base}
}

// newNoopLogger silences all output, used by tests that don't want
// runtime diagnostics on the test log.
func newNoopLogger() *logger {
	return newLogger(io.Discard, logiface.LevelEmergency)
}

// NewLogger constructs a structured logger writing stumpy-encoded JSON
// lines to w at the given minimum level, for use with [WithLogger].
func NewLogger(w io.Writer, level logiface.Level) *logger {
	return newLogger(w, level)
}

// NewNoopLogger returns a logger that discards everything, for use
// with [WithLogger] in tests that don't want runtime diagnostics
// interleaved with the test's own output.
func NewNoopLogger() *logger {
	return newNoopLogger()
}

func (l *logger) Debug(msg string, kv ...any) { l.log(logiface.LevelDebug, msg, kv) }
func (l *logger) Info(msg string, kv ...any)   { l.log(logiface.LevelInformational, msg, kv) }
func (l *logger) Warn(msg string, kv ...any)   { l.log(logiface.LevelWarning, msg, kv) }
func (l *logger) Error(msg string, kv ...any)  { l.log(logiface.LevelError, msg, kv) }

// log builds and emits one event. kv is a flat (key, value) sequence;
// an error value under the key "err" is attached via Builder.Err so it
// lands in stumpy's dedicated error field. Keys must be strings.
func (l *logger) log(level logiface.Level, msg string, kv []any) {
	b := l.base.Build(level)
	if b == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case error:
			b = b.Err(v)
		case string:
			b = b.Str(key, v)
		case int:
			b = b.Int64(key, int64(v))
		case int64:
			b = b.Int64(key, v)
		default:
			b = b.Str(key, fmt.Sprintf("%v", v))
		}
	}
	b.Log(msg)
}

var (
	defaultLoggerOnce sync.Once
	defaultLoggerInst *logger
)

// packageDefaultLogger returns the process-wide fallback logger used by
// any Scheduler constructed without WithLogger.
func packageDefaultLogger() *logger {
	defaultLoggerOnce.Do(func() { defaultLoggerInst = newDefaultLogger() })
	return defaultLoggerInst
}
