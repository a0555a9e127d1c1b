package cli

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is the process-wide structured logger. It starts as a no-op so
// that helpers are safe to call before PersistentPreRunE has run (e.g. in
// tests that invoke run* functions directly).
var logger = zap.NewNop()

// initLogger builds the logger for this invocation, writing to w.
// Warnings are always shown; --verbose lowers the level to debug. --json
// selects the JSON encoder so machine consumers get one object per line.
func initLogger(w io.Writer) error {
	if w == nil {
		return fmt.Errorf("failed to initialize logger: no output writer")
	}

	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	var enc zapcore.Encoder
	if jsonOutput {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.TimeKey = ""
		encCfg.CallerKey = ""
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	logger = zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level))
	return nil
}

// syncLogger flushes buffered log entries. Sync errors on terminals
// (EINVAL on /dev/stderr) are expected and ignored.
func syncLogger() {
	_ = logger.Sync()
}

// VerboseLog emits a debug-level message, visible only with --verbose.
func VerboseLog(format string, args ...interface{}) {
	logger.Sugar().Debugf(format, args...)
}

// warn emits a warning that is shown regardless of --verbose.
func warn(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}
