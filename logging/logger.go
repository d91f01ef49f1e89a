// Package logging adapts zap to the auth.Logger interface.
//
//	zl := logging.New("debug")
//	defer zl.Sync()
//	logger := logging.NewAdapter(zl)
//	logger.Info("login succeeded", "account_id", id)
package logging

import (
	auth "github.com/goliatone/go-auth-lifecycle"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger at level, falling back to info
// for unknown level names.
func New(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Adapter implements auth.Logger on a zap sugared logger
type Adapter struct {
	sugar *zap.SugaredLogger
}

var _ auth.Logger = (*Adapter)(nil)

// NewAdapter wraps l; a nil logger yields a no-op adapter
func NewAdapter(l *zap.Logger) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Adapter{sugar: l.Sugar()}
}

// Named returns an adapter scoped under name
func (a *Adapter) Named(name string) *Adapter {
	return &Adapter{sugar: a.sugar.Named(name)}
}

func (a *Adapter) Debug(msg string, args ...any) {
	a.sugar.Debugw(msg, args...)
}

func (a *Adapter) Info(msg string, args ...any) {
	a.sugar.Infow(msg, args...)
}

func (a *Adapter) Warn(msg string, args ...any) {
	a.sugar.Warnw(msg, args...)
}

func (a *Adapter) Error(msg string, args ...any) {
	a.sugar.Errorw(msg, args...)
}
