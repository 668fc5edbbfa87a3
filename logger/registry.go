package logger

import "sync"

// components caches the loggers handed out by Get.
var components = &componentLoggers{loggers: make(map[string]*Logger)}

type componentLoggers struct {
	mu      sync.Mutex
	base    *Logger
	loggers map[string]*Logger
}

// Configure derives component loggers from base from now on. Loggers
// handed out earlier keep their old base.
func Configure(base *Logger) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.base = base
	clear(components.loggers)
}

// Get returns the cached logger of a component. Without Configure it
// derives from the global logger.
func Get(name string) *Logger {
	components.mu.Lock()
	defer components.mu.Unlock()
	if l, ok := components.loggers[name]; ok {
		return l
	}
	base := components.base
	if base == nil {
		base = GetGlobalLogger()
	}
	l := base.WithComponent(name)
	components.loggers[name] = l
	return l
}
