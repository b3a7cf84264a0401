package cli

import "go.uber.org/zap"

// agentLogger wraps zap for verbose debug output on stderr.
type agentLogger struct {
	sugared *zap.SugaredLogger
	globals *Globals
}

func newAgentLogger(globals *Globals) *agentLogger {
	if globals == nil || !globals.Verbose {
		return &agentLogger{}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	logger, _ := cfg.Build()
	return &agentLogger{
		sugared: logger.Sugar(),
		globals: globals,
	}
}

func (l *agentLogger) Debug(format string, args ...interface{}) {
	if l.sugared == nil {
		return
	}
	l.sugared.Debugf(format, args...)
}

// newServerLogger builds the structured logger handed to the server and its
// collaborators. Quiet drops everything below warn.
func newServerLogger(globals *Globals) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	level := zap.InfoLevel
	if globals != nil {
		if err := level.Set(globals.Level); err != nil {
			level = zap.InfoLevel
		}
		if globals.Verbose {
			level = zap.DebugLevel
		}
		if globals.Quiet && level < zap.WarnLevel {
			level = zap.WarnLevel
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
