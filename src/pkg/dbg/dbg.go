// Package dbg tags diagnostic log lines with the calling goroutine's id, so
// a goroutine parked on a lock queue's condition variable can be correlated
// back to its caller in the log stream.
package dbg

import (
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

// GoroutineID returns the runtime goroutine id of the caller. Values have
// no meaning beyond process-local correlation between log lines.
func GoroutineID() int64 {
	return goid.Get()
}

// Caller returns the call stack above the caller of Caller, innermost
// frame first, joined for a single log field.
func Caller() string {
	const skip = 2

	pc := make([]uintptr, 32)
	n := runtime.Callers(skip, pc)
	if n == 0 {
		return "unknown"
	}

	var callers []string
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if frame.Func != nil {
			callers = append(callers, filepath.Base(frame.Func.Name()))
		} else {
			callers = append(callers, "unknown")
		}
		if !more {
			break
		}
	}
	return strings.Join(callers, " -> ")
}

// LoggedMutex wraps a sync.Mutex, logging goroutine id on every
// lock/unlock (and the caller on lock) at debug level. Intended for diagnosing lock-ordering issues,
// not for production hot paths.
type LoggedMutex struct {
	mu   sync.Mutex
	name string
	log  *zap.Logger
}

func NewLoggedMutex(name string, log *zap.Logger) *LoggedMutex {
	return &LoggedMutex{name: name, log: log}
}

func (lm *LoggedMutex) Lock() {
	lm.log.Debug("acquiring mutex", zap.String("mutex", lm.name), zap.Int64("goid", GoroutineID()), zap.String("caller", Caller()))
	lm.mu.Lock()
	lm.log.Debug("acquired mutex", zap.String("mutex", lm.name), zap.Int64("goid", GoroutineID()))
}

func (lm *LoggedMutex) Unlock() {
	lm.mu.Unlock()
	lm.log.Debug("released mutex", zap.String("mutex", lm.name), zap.Int64("goid", GoroutineID()))
}
