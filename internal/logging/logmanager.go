//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// registry tracks every logger handed out by GetLogger so that level
// updates reach loggers created before the configuration was read.
type registry struct {
	loggers  map[string]*Logger
	explicit map[string]bool
	defLevel zapcore.Level
}

var (
	loggers *registry
	mu      sync.RWMutex
	once    sync.Once
)

func initRegistry() {
	loggers = &registry{
		loggers:  make(map[string]*Logger),
		explicit: make(map[string]bool),
		defLevel: zapcore.InfoLevel,
	}
}

// resetForTesting resets the registry state - only for testing
func resetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	loggers = nil
	once = sync.Once{}
}

// GetLogger returns the logger for the specified module, creating it at the
// current default level on first use.
func GetLogger(mod string) *Logger {
	once.Do(initRegistry)

	mu.RLock()
	l := loggers.loggers[mod]
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()

	if l = loggers.loggers[mod]; l != nil {
		return l
	}

	l = newLogger(mod)
	l.SetLevel(loggers.defLevel)
	loggers.loggers[mod] = l

	return l
}

// parseLevel maps a level name onto zap; unknown names fall back to info.
// "trace" maps to debug.
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug", "trace":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// UpdateLogLevels updates log levels from a string of the form
// "mod1:debug;mod2:error;.:info" where "." names the default level.
// Whitespace is ignored.
func UpdateLogLevels(spec string) error {
	once.Do(initRegistry)

	spec = strings.Join(strings.Fields(spec), "")

	mu.Lock()
	defer mu.Unlock()

	for _, entry := range strings.Split(spec, ";") {
		mod, lvl, ok := strings.Cut(entry, ":")
		if !ok || mod == "" {
			continue
		}

		level := parseLevel(lvl)
		if mod == "." {
			loggers.defLevel = level
			for name, l := range loggers.loggers {
				if !loggers.explicit[name] {
					l.SetLevel(level)
				}
			}
			continue
		}

		l := loggers.loggers[mod]
		if l == nil {
			l = newLogger(mod)
			loggers.loggers[mod] = l
		}
		loggers.explicit[mod] = true
		l.SetLevel(level)
	}

	return nil
}
