package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string
	Pretty bool
	App    string
	Env    string
}

// New builds a development logger when Pretty is set and a JSON production logger otherwise.
// An unparsable level falls back to info.
func New(c Config) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level := new(zapcore.Level)
	if err := level.Set(c.Level); err != nil {
		*level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(*level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var fields []zap.Field
	if c.App != "" {
		fields = append(fields, zap.String("service", c.App))
	}
	if c.Env != "" {
		fields = append(fields, zap.String("env", c.Env))
	}
	return cfg.Build(zap.Fields(fields...))
}
