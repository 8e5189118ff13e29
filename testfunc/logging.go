package testfunc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chriskuehl/vcfrange/variants/logging"
)

type Line struct {
	Level   string
	Message string
	// Object is the query.object field of the context the line was logged with, if any.
	Object string
}

type MemoryLogger struct {
	lines []Line
	mu    sync.Mutex
}

func (ml *MemoryLogger) log(ctx context.Context, level string, msg string, args ...any) {
	line := strings.Builder{}
	line.WriteString(msg)
	for i, arg := range args {
		if i%2 == 0 {
			line.WriteString(fmt.Sprintf("\t%v=", arg))
		} else {
			line.WriteString(fmt.Sprintf("%v", arg))
		}
	}
	var object string
	if q, ok := logging.Query(ctx); ok {
		object = q.Object
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.lines = append(ml.lines, Line{
		Level:   level,
		Message: line.String(),
		Object:  object,
	})
}

func (ml *MemoryLogger) Debug(ctx context.Context, msg string, args ...any) {
	ml.log(ctx, "DEBUG", msg, args...)
}

func (ml *MemoryLogger) Info(ctx context.Context, msg string, args ...any) {
	ml.log(ctx, "INFO", msg, args...)
}

func (ml *MemoryLogger) Warn(ctx context.Context, msg string, args ...any) {
	ml.log(ctx, "WARN", msg, args...)
}

func (ml *MemoryLogger) Error(ctx context.Context, msg string, args ...any) {
	ml.log(ctx, "ERROR", msg, args...)
}

func (ml *MemoryLogger) Lines() []Line {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return append([]Line(nil), ml.lines...)
}

// HasLine reports whether a line at level starts with msg.
func (ml *MemoryLogger) HasLine(level, msg string) bool {
	for _, l := range ml.Lines() {
		if l.Level == level && strings.HasPrefix(l.Message, msg) {
			return true
		}
	}
	return false
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		lines: make([]Line, 0),
	}
}
