package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

type queryInfoKey struct{}

// QueryInfo describes one region query against one object. Every line logged with a context
// returned by WithQuery carries these fields.
type QueryInfo struct {
	ID     string
	Object string
	Contig string
	Start  uint64
	End    uint64
}

func (q *QueryInfo) newLogger(logger *slog.Logger) *slog.Logger {
	return logger.With(
		"query.id", q.ID,
		"query.object", q.Object,
		"query.contig", q.Contig,
		"query.start", q.Start,
		"query.end", q.End,
	)
}

// WithQuery returns a context tagged with the given query. A random ID is assigned if info.ID is
// empty.
func WithQuery(ctx context.Context, info QueryInfo) context.Context {
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	return context.WithValue(ctx, queryInfoKey{}, &info)
}

// Query returns the query the context was tagged with, if any.
func Query(ctx context.Context) (QueryInfo, bool) {
	q, ok := ctx.Value(queryInfoKey{}).(*QueryInfo)
	if !ok {
		return QueryInfo{}, false
	}
	return *q, true
}

type slogLogger struct {
	bareLogger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *slogLogger {
	return &slogLogger{bareLogger: logger}
}

func (l *slogLogger) logger(ctx context.Context) *slog.Logger {
	q, ok := ctx.Value(queryInfoKey{}).(*QueryInfo)
	if ok {
		return q.newLogger(l.bareLogger)
	}
	return l.bareLogger
}

func (l *slogLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.logger(ctx).Debug(msg, args...)
}

func (l *slogLogger) Info(ctx context.Context, msg string, args ...any) {
	l.logger(ctx).Info(msg, args...)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger(ctx).Warn(msg, args...)
}

func (l *slogLogger) Error(ctx context.Context, msg string, args ...any) {
	l.logger(ctx).Error(msg, args...)
}
