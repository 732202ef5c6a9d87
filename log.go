package ehttp

import "go.uber.org/zap"

// Logger is this module's logging sink: a small interface wrapping
// *zap.Logger. Nothing on the hot path calls it except HandlerError
// reporting and access logging; a nil Logger is valid and every call
// site on it is guarded.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	// Session returns a child logger tagged with an additional component
	// name, used for per-connection session loggers.
	Session(component string) Logger
}

type zapLogger struct {
	z *zap.Logger
}

// NewLogger wraps a *zap.Logger as a Logger.
func NewLogger(z *zap.Logger) Logger { return &zapLogger{z: z} }

// NewProductionLogger builds a Logger via zap's JSON production config,
// the default for cmd/ehttpd.
func NewProductionLogger() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewLogger(z), nil
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

func (l *zapLogger) Session(component string) Logger {
	return &zapLogger{z: l.z.Named(component)}
}

// logHandlerError reports a HandlerError through logger, a no-op if
// logger is nil. The core never requires a sink to be configured.
func logHandlerError(logger Logger, connID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler error", zap.String("conn_id", connID), zap.Error(err))
}
