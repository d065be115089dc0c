package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

var base = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stdout)
	return l
}

// L returns the process logger.
func L() *logrus.Logger { return base }

// SetLevel ignores unknown level names.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(lvl)
	}
}

type ctxKey struct{}

func WithEntry(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext returns the request-scoped entry, or a bare entry on the process logger.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok && e != nil {
			return e
		}
	}
	return logrus.NewEntry(base)
}

// LogError mirrors the module/func/context fields used across the service.
func LogError(ctx context.Context, module, fn, msg string, data any, err error) {
	fields := logrus.Fields{"module": module, "funcName": fn, "context": msg}
	if data != nil {
		fields["data"] = data
	}
	FromContext(ctx).WithFields(fields).Error(err)
}
